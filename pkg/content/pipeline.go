// Package content serves content requests: it negotiates the representation,
// answers from the cache buckets when it can, and otherwise fetches, renders
// and stores the response.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/cachestorage"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/configdb"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/fetcher"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/logs"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/monitor"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/pages"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/providers"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/query"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/uri"
	"github.com/IceFireDB/IceFireDB-SWGateway/utils"
	"github.com/sirupsen/logrus"
)

// ProbeCID is the empty identity CID used to detect subdomain support.
const ProbeCID = "bafkqaaa"

const (
	defaultMaxEntrySize = 32 << 20
	maxRenderSize       = 8 << 20
	maxErrorBodySize    = 1 << 20
	storeTimeout        = 30 * time.Second
)

// Request is one content request.
type Request struct {
	HTTP *http.Request
	// absolute URL of the request as the browser sent it
	URL       *url.URL
	URI       uri.ContentURI
	RequestID string
	Logs      *logs.Collector
	// WaitUntil runs task in the background, tracked so shutdown can wait
	// for it. When nil tasks run untracked.
	WaitUntil func(task func())
}

// Settings is the gateway state a request is served with.
type Settings struct {
	Config      configdb.GatewayConfig
	InstallTime time.Time
	Origin      string
}

type Pipeline struct {
	Fetcher      fetcher.Fetcher
	Caches       *cachestorage.Storage
	Metrics      *monitor.Metrics
	Version      string
	MaxEntrySize int

	now func() time.Time
}

func New(f fetcher.Fetcher, caches *cachestorage.Storage, m *monitor.Metrics, version string) *Pipeline {
	return &Pipeline{
		Fetcher:      f,
		Caches:       caches,
		Metrics:      m,
		Version:      version,
		MaxEntrySize: defaultMaxEntrySize,
		now:          time.Now,
	}
}

// IsProbe reports whether c is the subdomain support probe.
func IsProbe(c uri.ContentURI) bool {
	return c.Protocol() == uri.ProtocolIPFS && c.Identifier() == ProbeCID
}

// Serve answers req. It always returns a response; failures become error
// pages.
func (p *Pipeline) Serve(ctx context.Context, req *Request, s Settings) *http.Response {
	if IsProbe(req.URI) {
		return Text(http.StatusOK, "", nil)
	}

	log := logrus.WithField(logs.FieldRequestID, req.RequestID)
	params := query.Parse(req.HTTP.URL.RawQuery)
	accept, renderHTML := NegotiateAccept(req.HTTP.Header.Get("Accept"), params)
	key := CacheKey(req.URI, accept, renderHTML, req.HTTP.Header.Get("If-None-Match"))
	bucketName := BucketFor(req.URI)
	log.Debugf("content: cache key %s", key)

	bucket := p.openBucket(ctx, bucketName, log)
	if bucket != nil {
		if resp := p.lookup(ctx, bucket, key, req, log); resp != nil {
			return p.stripHints(req, resp)
		}
	}

	fetchCtx := ctx
	if req.URL != nil && stripHints(req.URL) != nil {
		// the body is drained after the redirect has been sent
		fetchCtx = context.WithoutCancel(ctx)
	}
	resp := p.fetch(fetchCtx, req, s, accept, renderHTML, params, log)

	if bucket != nil && ShouldCache(req.HTTP, resp) {
		p.store(req, bucket, key, resp, log)
	} else {
		p.Metrics.CacheStore(bucketName, "skipped")
	}
	return p.stripHints(req, resp)
}

func (p *Pipeline) openBucket(ctx context.Context, name string, log logrus.FieldLogger) *cachestorage.Bucket {
	if p.Caches == nil {
		return nil
	}
	b, err := p.Caches.Open(ctx, name)
	if err != nil {
		log.Errorf("content: open cache %s: %v", name, err)
		return nil
	}
	return b
}

func (p *Pipeline) lookup(ctx context.Context, b *cachestorage.Bucket, key string, req *Request, log logrus.FieldLogger) *http.Response {
	entry, err := b.Match(ctx, key)
	switch {
	case err != nil:
		log.Errorf("content: cache match %s: %v", key, err)
		p.Metrics.CacheLookup(b.Name(), "error")
		return nil
	case entry == nil:
		log.Debugf("content: cache MISS %s", key)
		p.Metrics.CacheLookup(b.Name(), "miss")
		return nil
	case HasExpired(entry.Header, p.now()):
		log.Debugf("content: cache EXPIRED %s (%s)", key, entry.Header.Get(HeaderCacheExpires))
		p.Metrics.CacheLookup(b.Name(), "expired")
		return nil
	}
	log.Debugf("content: cache HIT %s", key)
	p.Metrics.CacheLookup(b.Name(), "hit")
	return entry.Response(req.HTTP)
}

// store tees the body into the bucket. The write happens in the background
// once the body has been read to the end.
func (p *Pipeline) store(req *Request, b *cachestorage.Bucket, key string, resp *http.Response, log logrus.FieldLogger) {
	if IsMutable(req.URI) {
		SetExpires(resp.Header, p.now(), MutableTTL)
	}
	entry := cachestorage.NewEntry(resp, nil)
	resp.Body = &teeBody{
		ReadCloser: resp.Body,
		max:        p.MaxEntrySize,
		done: func(body []byte) {
			entry.Body = append([]byte(nil), body...)
			p.background(req, func() {
				ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
				defer cancel()
				if err := b.Put(ctx, key, entry); err != nil {
					log.Errorf("content: store %s: %v", key, err)
					p.Metrics.CacheStore(b.Name(), "error")
					return
				}
				log.Debugf("content: stored %s in %s", key, b.Name())
				p.Metrics.CacheStore(b.Name(), "ok")
			})
		},
	}
}

func (p *Pipeline) background(req *Request, task func()) {
	if req.WaitUntil != nil {
		req.WaitUntil(task)
		return
	}
	utils.GoWithRecover(task, nil)
}

// stripHints answers a successful request carrying gateway hints with a
// redirect to the same URL without them. The body is drained in the
// background so a pending cache write completes.
func (p *Pipeline) stripHints(req *Request, resp *http.Response) *http.Response {
	if resp.StatusCode < 200 || resp.StatusCode > 299 || req.URL == nil {
		return resp
	}
	loc := stripHints(req.URL)
	if loc == nil {
		return resp
	}
	body := resp.Body
	p.background(req, func() {
		defer body.Close()
		io.Copy(io.Discard, body)
	})
	h := http.Header{}
	h.Set("Location", loc.String())
	return Text(http.StatusFound, "", h)
}

func nativeResource(c uri.ContentURI) string {
	u := *c.Canonical().NativeURL
	u.RawQuery = query.Parse(u.RawQuery).Without(uri.GatewayParam).Encode()
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func (p *Pipeline) fetch(ctx context.Context, req *Request, s Settings, accept string, renderHTML bool, params query.Params, log logrus.FieldLogger) *http.Response {
	resource := nativeResource(req.URI)
	headers := req.HTTP.Header.Clone()
	if accept == "" {
		headers.Del("Accept")
	} else {
		headers.Set("Accept", accept)
	}

	collector := providers.NewCollector()
	opts := fetcher.Options{
		Headers:                 headers,
		OnProgress:              collector.OnProgress,
		SupportDirectoryIndexes: s.Config.SupportDirectoryIndexes,
		SupportWebRedirects:     s.Config.SupportWebRedirects,
	}
	if ipfs, ok := req.URI.(*uri.IPFS); ok {
		opts.Gateways = ipfs.Gateways
	}

	details := func(status int, statusText string, h http.Header, body string) pages.FetchErrorDetails {
		return pages.FetchErrorDetails{
			RequestID: req.RequestID,
			Request:   pages.RequestDetails{Resource: resource, Method: req.HTTP.Method, Headers: pages.HeaderMap(headers)},
			Response: pages.ResponseDetails{
				Resource:   resource,
				Headers:    pages.HeaderMap(h),
				Status:     status,
				StatusText: statusText,
				Body:       body,
			},
			Gateway: pages.GatewayDetails{
				Config:      s.Config,
				InstallTime: pages.InstallTimeString(s.InstallTime),
				Origin:      s.Origin,
				Version:     p.Version,
			},
			Providers: collector.Summary(),
			Logs:      lines(req.Logs),
		}
	}

	fctx, in := withInactivityTimeout(ctx, s.Config.FetchTimeout)
	finished := p.Metrics.FetchStarted()
	start := time.Now()

	resp, err := p.Fetcher.Fetch(fctx, resource, opts)
	if err != nil {
		timeout := timedOut(fctx)
		in.stop()
		finished("error")

		status := statusFor(err)
		if timeout {
			status = http.StatusGatewayTimeout
			err = fmt.Errorf("timed out after %s: %w", time.Since(start).Round(time.Millisecond), ErrInactivityTimeout)
		} else {
			log.Errorf("content: fetch %s: %v", resource, err)
		}
		h := http.Header{}
		h.Set("Content-Type", "application/json")
		return pages.FetchError(details(status, http.StatusText(status), h, errorJSON(err)), h)
	}
	finished(strconv.Itoa(resp.StatusCode))
	log.Infof("%s %s %d", req.HTTP.Method, resource, resp.StatusCode)

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		resp.Body.Close()
		in.stop()
		if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
			resp.Body = io.NopCloser(bytes.NewReader(body))
			resp.ContentLength = int64(len(body))
			return resp
		}
		return pages.FetchError(details(resp.StatusCode, statusText(resp), resp.Header, string(body)), resp.Header)
	}

	if resp.StatusCode < 300 {
		if resp.Header.Get(fetcher.HeaderDirectory) != "" {
			return p.renderDirectory(req, resp, in)
		}
		if renderHTML && renderable(resp.Header.Get("Content-Type")) {
			return p.renderEntity(req, resp, in)
		}
		if v, _ := params.Get(ParamDownload); v == "true" {
			forceDownload(resp.Header, downloadName(req.HTTP.URL.Path))
		}
	}

	if resp.Body == nil {
		resp.Body = http.NoBody
	}
	resp.Body = &activityBody{ReadCloser: resp.Body, in: in}
	return resp
}

func (p *Pipeline) readForRender(resp *http.Response, in *inactivity) ([]byte, error) {
	defer in.stop()
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(&activityBody{ReadCloser: resp.Body, in: in}, maxRenderSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxRenderSize {
		return nil, fmt.Errorf("content: body larger than %d bytes cannot be rendered", maxRenderSize)
	}
	return body, nil
}

func (p *Pipeline) renderDirectory(req *Request, resp *http.Response, in *inactivity) *http.Response {
	body, err := p.readForRender(resp, in)
	var entries []pages.DirEntry
	if err == nil {
		entries, err = pages.ParseDagJSONDirectory(req.HTTP.URL.Path, body)
	}
	if err != nil {
		return pages.ServerError(req.URL, err, lines(req.Logs), http.StatusInternalServerError)
	}
	return pages.Directory(pages.DirectoryDetails{
		Path:    req.HTTP.URL.Path,
		CID:     rootCID(req.URI, resp.Header),
		Parent:  parentOf(req),
		Entries: entries,
	}, resp.StatusCode, resp.Header)
}

func (p *Pipeline) renderEntity(req *Request, resp *http.Response, in *inactivity) *http.Response {
	body, err := p.readForRender(resp, in)
	if err != nil {
		return pages.ServerError(req.URL, err, lines(req.Logs), http.StatusInternalServerError)
	}
	ipfsPath := resp.Header.Get("X-Ipfs-Path")
	if ipfsPath == "" {
		ipfsPath = req.URI.Canonical().NativeURL.Path
	}
	return pages.Entity(pages.EntityDetails{
		CID:         rootCID(req.URI, resp.Header),
		Path:        ipfsPath,
		ContentType: resp.Header.Get("Content-Type"),
		Request:     pages.HeaderMap(req.HTTP.Header),
		Response:    pages.HeaderMap(resp.Header),
	}, body, resp.StatusCode, resp.Header)
}

// rootCID is the last CID of X-Ipfs-Roots, or the request identifier.
func rootCID(c uri.ContentURI, h http.Header) string {
	if roots := h.Get("X-Ipfs-Roots"); roots != "" {
		parts := strings.Split(roots, ",")
		return strings.TrimSpace(parts[len(parts)-1])
	}
	return c.Identifier()
}

// parentOf links a directory listing to its parent, unless it is the root
// of the content.
func parentOf(req *Request) string {
	p := req.HTTP.URL.Path
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	root := "/"
	if req.URI.Kind() == uri.TypePath {
		segs := strings.SplitN(strings.TrimPrefix(p, "/"), "/", 3)
		if len(segs) >= 2 {
			root = "/" + segs[0] + "/" + segs[1] + "/"
		}
	}
	if p == root {
		return ""
	}
	parent := path.Dir(strings.TrimSuffix(p, "/"))
	if parent == "/" {
		return parent
	}
	return parent + "/"
}

func downloadName(p string) string {
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	return path.Base(p)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fetcher.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fetcher.ErrBadResource):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}
	return text
}

func errorJSON(err error) string {
	b, _ := json.MarshalIndent(pages.ErrorToObject(err), "", "  ")
	return string(b)
}

func lines(c *logs.Collector) []string {
	if c == nil {
		return nil
	}
	return c.Lines()
}

// Text builds a response with a plain text body.
func Text(status int, body string, h http.Header) *http.Response {
	if h == nil {
		h = http.Header{}
	}
	if body != "" {
		h.Set("Content-Type", "text/plain; charset=utf-8")
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}
