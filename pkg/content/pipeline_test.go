package content

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	_ "github.com/IceFireDB/IceFireDB-SWGateway/driver/datastore"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/cachestorage"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/configdb"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/fetcher"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/uri"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	root  = "http://localhost:3000"
	cidV1 = "bafybeigccimv3zqm5g4jt363faybagywkvqbrismoquogimy7kvz2sj7sq"
)

type fakeFetcher struct {
	mu        sync.Mutex
	calls     int
	resources []string
	opts      []fetcher.Options
	respond   func(ctx context.Context, resource string, opts fetcher.Options) (*http.Response, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, resource string, opts fetcher.Options) (*http.Response, error) {
	f.mu.Lock()
	f.calls++
	f.resources = append(f.resources, resource)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	return f.respond(ctx, resource, opts)
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okResponse(status int, contentType, body string) func(context.Context, string, fetcher.Options) (*http.Response, error) {
	return func(context.Context, string, fetcher.Options) (*http.Response, error) {
		h := http.Header{}
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		return &http.Response{
			Status:     http.StatusText(status),
			StatusCode: status,
			Header:     h,
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	}
}

type harness struct {
	p  *Pipeline
	f  *fakeFetcher
	wg sync.WaitGroup
}

func newHarness(t *testing.T, respond func(context.Context, string, fetcher.Options) (*http.Response, error)) *harness {
	t.Helper()
	db, err := driver.Open("datastore", "caches", nil)
	require.NoError(t, err)
	caches := cachestorage.New(db)
	t.Cleanup(func() { caches.Close() })

	f := &fakeFetcher{respond: respond}
	return &harness{p: New(f, caches, nil, "test"), f: f}
}

func settings() Settings {
	cfg := configdb.Defaults()
	cfg.FetchTimeout = 5 * time.Second
	return Settings{Config: cfg, Origin: root}
}

func (h *harness) request(t *testing.T, target string, header http.Header) *Request {
	t.Helper()
	u, err := url.Parse(target)
	require.NoError(t, err)
	rootURL, _ := url.Parse(root)
	res, err := uri.Parse(u, rootURL)
	require.NoError(t, err)
	c, ok := res.(uri.ContentURI)
	require.True(t, ok, "%s is not a content request", target)

	r := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		r.Header[k] = v
	}
	return &Request{
		HTTP:      r,
		URL:       u,
		URI:       c,
		RequestID: "test",
		WaitUntil: func(task func()) {
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				task()
			}()
		},
	}
}

func (h *harness) serve(t *testing.T, target string, header http.Header) (*http.Response, string) {
	t.Helper()
	return h.serveWith(t, context.Background(), settings(), target, header)
}

func (h *harness) serveWith(t *testing.T, ctx context.Context, s Settings, target string, header http.Header) (*http.Response, string) {
	t.Helper()
	resp := h.p.Serve(ctx, h.request(t, target, header), s)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	h.wg.Wait()
	return resp, string(body)
}

func TestServe_MissThenHit(t *testing.T) {
	h := newHarness(t, okResponse(http.StatusOK, "text/plain", "hello"))
	target := root + "/ipfs/" + cidV1 + "/a.txt"

	resp, body := h.serve(t, target, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", body)
	assert.Empty(t, resp.Header.Get(HeaderCacheExpires))
	assert.Equal(t, 1, h.f.Calls())
	assert.Equal(t, "ipfs://"+cidV1+"/a.txt", h.f.resources[0])

	resp, body = h.serve(t, target, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", body)
	assert.Equal(t, 1, h.f.Calls())

	// a different representation is a different entry
	h.serve(t, target, http.Header{"Accept": {fetcher.MediaTypeRaw}})
	assert.Equal(t, 2, h.f.Calls())
}

func TestServe_MutableExpiry(t *testing.T) {
	h := newHarness(t, okResponse(http.StatusOK, "text/html", "<p>docs</p>"))
	target := root + "/ipns/docs.ipfs.tech/"

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.p.now = func() time.Time { return now }

	resp, _ := h.serve(t, target, nil)
	assert.Equal(t, "Wed, 01 May 2024 13:00:00 GMT", resp.Header.Get(HeaderCacheExpires))
	assert.Equal(t, "ipns://docs.ipfs.tech/", h.f.resources[0])

	h.serve(t, target, nil)
	assert.Equal(t, 1, h.f.Calls())

	now = now.Add(2 * time.Hour)
	h.serve(t, target, nil)
	assert.Equal(t, 2, h.f.Calls())

	bucket, err := h.p.Caches.Open(context.Background(), cachestorage.MutableName)
	require.NoError(t, err)
	keys, err := bucket.Keys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestServe_CARAcceptFromQuery(t *testing.T) {
	h := newHarness(t, okResponse(http.StatusOK, fetcher.MediaTypeCAR, "car"))

	h.serve(t, root+"/ipfs/"+cidV1+"?format=car&car-version=1&car-order=dfs&car-dups=y",
		http.Header{"Accept": {"text/html"}})

	require.Equal(t, 1, h.f.Calls())
	assert.Equal(t, "application/vnd.ipld.car; version=1; order=dfs; dups=y", h.f.opts[0].Headers.Get("Accept"))
	assert.Equal(t, "ipfs://"+cidV1+"/?format=car&car-version=1&car-order=dfs&car-dups=y", h.f.resources[0])
}

func TestServe_NoCache(t *testing.T) {
	h := newHarness(t, okResponse(http.StatusOK, "text/plain", "hello"))
	target := root + "/ipfs/" + cidV1 + "/a.txt"

	h.serve(t, target, http.Header{"Cache-Control": {"no-cache"}})
	h.serve(t, target, http.Header{"Pragma": {"no-cache"}})
	assert.Equal(t, 2, h.f.Calls())

	bucket, err := h.p.Caches.Open(context.Background(), cachestorage.ImmutableName)
	require.NoError(t, err)
	keys, err := bucket.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestServe_PartialContentNotCached(t *testing.T) {
	h := newHarness(t, okResponse(http.StatusPartialContent, "text/plain", "hel"))
	target := root + "/ipfs/" + cidV1 + "/a.txt"

	h.serve(t, target, http.Header{"Range": {"bytes=0-2"}})
	h.serve(t, target, http.Header{"Range": {"bytes=0-2"}})
	assert.Equal(t, 2, h.f.Calls())
	assert.Equal(t, "bytes=0-2", h.f.opts[0].Headers.Get("Range"))
}

func TestServe_Probe(t *testing.T) {
	h := newHarness(t, okResponse(http.StatusOK, "", ""))
	resp, body := h.serve(t, "http://"+ProbeCID+".ipfs.localhost:3000/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
	assert.Equal(t, 0, h.f.Calls())
}

func TestServe_InactivityTimeout(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, _ string, _ fetcher.Options) (*http.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s := settings()
	s.Config.FetchTimeout = 20 * time.Millisecond

	resp, body := h.serveWith(t, context.Background(), s, root+"/ipfs/"+cidV1+"/slow", nil)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "504 Gateway Timeout")
}

func TestServe_CallerCancelIsNotATimeout(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, _ string, _ fetcher.Options) (*http.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, _ := h.serveWith(t, ctx, settings(), root+"/ipfs/"+cidV1+"/gone", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

// slowBody yields chunks every interval, failing once ctx is cancelled.
type slowBody struct {
	ctx      context.Context
	chunks   int
	interval time.Duration
}

func (b *slowBody) Read(p []byte) (int, error) {
	if b.chunks == 0 {
		return 0, io.EOF
	}
	time.Sleep(b.interval)
	if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	b.chunks--
	p[0] = 'x'
	return 1, nil
}

func (b *slowBody) Close() error { return nil }

func TestServe_ProgressResetsTimeout(t *testing.T) {
	var interval time.Duration
	h := newHarness(t, func(ctx context.Context, _ string, _ fetcher.Options) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       &slowBody{ctx: ctx, chunks: 5, interval: interval},
		}, nil
	})
	s := settings()
	s.Config.FetchTimeout = 200 * time.Millisecond

	interval = 50 * time.Millisecond
	resp := h.p.Serve(context.Background(), h.request(t, root+"/ipfs/"+cidV1+"/progress", nil), s)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "xxxxx", string(body))
	resp.Body.Close()

	interval = 400 * time.Millisecond
	resp = h.p.Serve(context.Background(), h.request(t, root+"/ipfs/"+cidV1+"/stalled", nil), s)
	_, err = io.ReadAll(resp.Body)
	assert.ErrorIs(t, err, context.Canceled)
	resp.Body.Close()
	h.wg.Wait()
}

func TestServe_FetchErrors(t *testing.T) {
	h := newHarness(t, func(context.Context, string, fetcher.Options) (*http.Response, error) {
		return nil, errors.Join(fetcher.ErrNotFound, errors.New("no providers"))
	})
	resp, body := h.serve(t, root+"/ipfs/"+cidV1+"/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "404 Not Found")

	h.f.respond = func(context.Context, string, fetcher.Options) (*http.Response, error) {
		return nil, fetcher.ErrUnsupportedHash
	}
	resp, _ = h.serve(t, root+"/ipfs/"+cidV1+"/blake", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServe_UpstreamErrors(t *testing.T) {
	h := newHarness(t, okResponse(http.StatusNotAcceptable, "text/plain", "no such format"))
	resp, body := h.serve(t, root+"/ipfs/"+cidV1+"/x", nil)
	assert.Equal(t, http.StatusNotAcceptable, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "no such format")

	h.f.respond = okResponse(http.StatusNotFound, "text/html", "<h1>gone</h1>")
	resp, body = h.serve(t, root+"/ipfs/"+cidV1+"/y", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "<h1>gone</h1>", body)
}

func TestServe_GatewayHintRedirect(t *testing.T) {
	h := newHarness(t, okResponse(http.StatusOK, "text/plain", "hinted"))
	hinted := root + "/ipfs/" + cidV1 + "/a.txt?gateway=" + url.QueryEscape("https://gw.example/")

	resp, _ := h.serve(t, hinted, nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, root+"/ipfs/"+cidV1+"/a.txt", resp.Header.Get("Location"))
	require.Len(t, h.f.opts[0].Gateways, 1)
	assert.Equal(t, "https://gw.example/", h.f.opts[0].Gateways[0].String())
	assert.Equal(t, "ipfs://"+cidV1+"/a.txt", h.f.resources[0])

	resp, body := h.serve(t, root+"/ipfs/"+cidV1+"/a.txt", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hinted", body)
	assert.Equal(t, 1, h.f.Calls())
}

// gatedBody holds reads until release is closed and fails once the fetch
// context is done.
type gatedBody struct {
	ctx     context.Context
	release chan struct{}
	r       io.Reader
}

func (b *gatedBody) Read(p []byte) (int, error) {
	<-b.release
	if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	return b.r.Read(p)
}

func (b *gatedBody) Close() error { return nil }

func TestServe_GatewayHintStoredAfterCallerGone(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(ctx context.Context, _ string, _ fetcher.Options) (*http.Response, error) {
		hd := http.Header{}
		hd.Set("Content-Type", "text/plain")
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     hd,
			Body:       &gatedBody{ctx: ctx, release: release, r: strings.NewReader("xxx")},
		}, nil
	})
	hinted := root + "/ipfs/" + cidV1 + "/a.txt?gateway=" + url.QueryEscape("https://gw.example/")

	ctx, cancel := context.WithCancel(context.Background())
	resp := h.p.Serve(ctx, h.request(t, hinted, nil), settings())
	require.Equal(t, http.StatusFound, resp.StatusCode)
	resp.Body.Close()
	// the client is gone before the background drain reads anything
	cancel()
	close(release)
	h.wg.Wait()

	resp, body := h.serve(t, root+"/ipfs/"+cidV1+"/a.txt", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "xxx", body)
	assert.Equal(t, 1, h.f.Calls())
}

func TestServe_Download(t *testing.T) {
	h := newHarness(t, func(context.Context, string, fetcher.Options) (*http.Response, error) {
		hd := http.Header{}
		hd.Set("Content-Disposition", `inline; filename="cat.jpg"`)
		return &http.Response{StatusCode: http.StatusOK, Header: hd, Body: io.NopCloser(strings.NewReader("jpg"))}, nil
	})
	resp, _ := h.serve(t, root+"/ipfs/"+cidV1+"/cat.jpg?download=true", nil)
	assert.Equal(t, `attachment; filename="cat.jpg"`, resp.Header.Get("Content-Disposition"))

	resp, _ = h.serve(t, root+"/ipfs/"+cidV1+"/cat.jpg?download=false", nil)
	assert.Equal(t, `inline; filename="cat.jpg"`, resp.Header.Get("Content-Disposition"))
}

func TestServe_DirectoryListing(t *testing.T) {
	h := newHarness(t, func(context.Context, string, fetcher.Options) (*http.Response, error) {
		hd := http.Header{}
		hd.Set("Content-Type", fetcher.MediaTypeDagJSON)
		hd.Set(fetcher.HeaderDirectory, "true")
		body := `{"Links":[{"Hash":{"/":"bafkreia"},"Name":"a.txt","Tsize":5}]}`
		return &http.Response{StatusCode: http.StatusOK, Header: hd, Body: io.NopCloser(strings.NewReader(body))}, nil
	})
	resp, body := h.serve(t, root+"/ipfs/"+cidV1+"/docs/", http.Header{"Accept": {"text/html,*/*;q=0.8"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, `href="/ipfs/`+cidV1+`/docs/a.txt"`)
	assert.Contains(t, body, `href="/ipfs/`+cidV1+`/"`)
	assert.Empty(t, h.f.opts[0].Headers.Get("Accept"))
}

func TestServe_EntityPage(t *testing.T) {
	h := newHarness(t, okResponse(http.StatusOK, fetcher.MediaTypeDagCBOR, "\xa1\x61\x61\x01"))
	resp, body := h.serve(t, root+"/ipfs/"+cidV1, http.Header{"Accept": {"text/html"}})
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "oWFhAQ==")

	// explicit IPLD accept gets the bytes
	resp, body = h.serve(t, root+"/ipfs/"+cidV1, http.Header{"Accept": {fetcher.MediaTypeDagCBOR}})
	assert.Equal(t, fetcher.MediaTypeDagCBOR, resp.Header.Get("Content-Type"))
	assert.Equal(t, "\xa1\x61\x61\x01", body)
}
