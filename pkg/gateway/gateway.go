// Package gateway turns incoming HTTP requests into handler events, the way
// a service worker turns fetch events into responses, and owns the worker
// lifecycle.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/cachestorage"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/content"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/handler"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/logs"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/monitor"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/pages"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/subdomain"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/uri"
	"github.com/IceFireDB/IceFireDB-SWGateway/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Build identifies the running binary in the Server header.
type Build struct {
	Name     string
	Version  string
	Revision string
}

func (b Build) String() string {
	return fmt.Sprintf("%s/%s#%s", b.Name, b.Version, b.Revision)
}

type Options struct {
	// Root is the origin the gateway is installed on.
	Root *url.URL
	// Chain defaults to DefaultChain.
	Chain handler.Chain
	// Files serves the UI bundle.
	Files http.Handler
	// Fallback serves whatever no handler accepts, and everything while the
	// gateway is unregistered. It defaults to Files.
	Fallback http.Handler
	State    *State
	Caches   *cachestorage.Storage
	Logs     *logs.Hub
	Metrics  *monitor.Metrics
	Build    Build
}

type Gateway struct {
	Options

	registered *atomic.Bool
	requests   *atomic.Uint64
	inflight   sync.WaitGroup
}

func New(opts Options) *Gateway {
	if opts.Files == nil {
		opts.Files = http.NotFoundHandler()
	}
	if opts.Fallback == nil {
		opts.Fallback = opts.Files
	}
	g := &Gateway{
		Options:    opts,
		registered: atomic.NewBool(false),
		requests:   atomic.NewUint64(0),
	}
	if g.Chain == nil {
		g.Chain = g.DefaultChain()
	}
	return g
}

// DefaultChain is unregister, uri-router, asset, content, in that order.
func (g *Gateway) DefaultChain() handler.Chain {
	p := content.New(g.State, g.Caches, g.Metrics, g.Build.Version)
	return handler.Chain{
		&handler.Unregister{OnUnregister: g.Unregister},
		handler.URIRouter{},
		&handler.Asset{Caches: g.Caches, Files: g.Files, Metrics: g.Metrics},
		&handler.Content{Pipeline: p, State: g.State},
	}
}

// Registered reports whether the gateway handles requests.
func (g *Gateway) Registered() bool {
	return g.registered.Load()
}

// Requests is the number of requests dispatched to a handler.
func (g *Gateway) Requests() uint64 {
	return g.requests.Load()
}

// WaitUntil runs task in the background. Shutdown waits for it.
func (g *Gateway) WaitUntil(task func()) {
	g.inflight.Add(1)
	utils.GoWithRecover(func() {
		defer g.inflight.Done()
		task()
	}, nil)
}

// Shutdown waits for background tasks until ctx is done.
func (g *Gateway) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.registered.Load() {
		g.Fallback.ServeHTTP(w, r)
		return
	}

	u := absoluteURL(r)
	id := uuid.NewString()
	collector := g.Logs.Collect(id)
	defer collector.Close()
	log := logrus.WithField(logs.FieldRequestID, id)

	res, err := uri.Parse(u, g.Root)
	if err != nil {
		var invalid *uri.InvalidParametersError
		if errors.As(err, &invalid) {
			writeResponse(w, g.finish(u, pages.ServerError(u, err, collector.Lines(), http.StatusBadRequest)), log)
			return
		}
		log.Debugf("gateway: could not classify %s: %v", u, err)
		res = nil
	}

	ev := &handler.Event{
		Request:   r,
		URL:       u,
		Resource:  res,
		RequestID: id,
		Logs:      collector,
		WaitUntil: g.WaitUntil,
	}

	resp, h, err := g.dispatch(r.Context(), ev)
	if h == nil && err == nil {
		log.Debugf("gateway: no handler found, falling back for %s", u)
		g.Metrics.Dispatched("fallback")
		g.Fallback.ServeHTTP(w, r)
		return
	}
	g.requests.Inc()
	if h != nil {
		g.Metrics.Dispatched(h.Name())
	}
	if err != nil {
		log.Errorf("gateway: %s: %v", u, err)
		resp = pages.ServerError(u, err, collector.Lines(), http.StatusInternalServerError)
	}
	writeResponse(w, g.finish(u, resp), log)
}

func (g *Gateway) dispatch(ctx context.Context, ev *handler.Event) (resp *http.Response, h handler.Handler, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	resp, h, err = g.Chain.Dispatch(ctx, ev)
	if err == nil && h != nil && resp == nil {
		err = fmt.Errorf("%s returned no response", h.Name())
	}
	return resp, h, err
}

// finish applies what every handled response gets: ipfs:// and ipns://
// redirects rewritten for this origin, and the Server header.
func (g *Gateway) finish(u *url.URL, resp *http.Response) *http.Response {
	subdomain.UpdateRedirect(u, resp.Header)
	resp.Header.Set("Server", g.Build.String())
	return resp
}

var hopHeaders = []string{"Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade", "Proxy-Connection"}

func writeResponse(w http.ResponseWriter, resp *http.Response, log logrus.FieldLogger) {
	defer resp.Body.Close()
	h := w.Header()
	for k, v := range resp.Header {
		h[k] = v
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Debugf("gateway: write body: %v", err)
	}
}

// absoluteURL rebuilds the URL the browser requested.
func absoluteURL(r *http.Request) *url.URL {
	u := *r.URL
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		u.Scheme = proto
	}
	u.Host = r.Host
	if u.Host == "" {
		u.Host = r.URL.Host
	}
	u.User = nil
	return &u
}
