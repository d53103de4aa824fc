package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/cachestorage"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/monitor"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/subdomain"
)

var assetRegex = regexp.MustCompile(`^.+/(?:ipfs-sw-).+$`)

// Asset serves the gateway's own UI files, answering from the sw-assets
// bucket when it can.
type Asset struct {
	Caches *cachestorage.Storage
	// Files serves the UI bundle.
	Files   http.Handler
	Metrics *monitor.Metrics
}

func (*Asset) Name() string { return "asset-handler" }

// CanHandle accepts ipfs-sw-* files, and the index page on any origin that
// is not a subdomain gateway.
func (*Asset) CanHandle(ev *Event) bool {
	if assetRegex.MatchString(ev.URL.String()) {
		return true
	}
	return ev.URL.Path == "/" && !subdomain.IsSubdomainGatewayRequest(ev.URL)
}

func (h *Asset) Handle(ctx context.Context, ev *Event) (*http.Response, error) {
	log := ev.log()
	key := ev.URL.String()

	var bucket *cachestorage.Bucket
	if h.Caches != nil {
		b, err := h.Caches.Open(ctx, cachestorage.AssetsName)
		if err != nil {
			log.Errorf("asset: open cache: %v", err)
		} else {
			bucket = b
		}
	}

	if bucket != nil {
		entry, err := bucket.Match(ctx, key)
		switch {
		case err != nil:
			log.Errorf("asset: error matching cached response: %v", err)
			h.Metrics.CacheLookup(bucket.Name(), "error")
		case entry != nil:
			h.Metrics.CacheLookup(bucket.Name(), "hit")
			return entry.Response(ev.Request), nil
		default:
			h.Metrics.CacheLookup(bucket.Name(), "miss")
		}
	}

	if h.Files == nil {
		return nil, fmt.Errorf("asset: no files to serve %s", ev.URL.Path)
	}
	rec := newRecorder()
	h.Files.ServeHTTP(rec, ev.Request.WithContext(ctx))
	resp := rec.response(ev.Request)

	if bucket != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		entry := cachestorage.NewEntry(resp, rec.body.Bytes())
		ev.background(func() {
			if err := bucket.Put(context.Background(), key, entry); err != nil {
				log.Errorf("asset: error caching response: %v", err)
				h.Metrics.CacheStore(bucket.Name(), "error")
				return
			}
			h.Metrics.CacheStore(bucket.Name(), "ok")
		})
	}
	return resp, nil
}

// recorder buffers what an http.Handler writes.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: http.Header{}}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	return r.body.Write(p)
}

func (r *recorder) response(req *http.Request) *http.Response {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	body := r.body.Bytes()
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        r.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
