package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/content"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/pages"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/query"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/subdomain"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/uri"
)

// State is what the content handler needs to know about the running gateway.
type State interface {
	Settings(ctx context.Context) content.Settings
	SubdomainSupport(ctx context.Context, parentDomain string) subdomain.Support
}

// Content serves subdomain and path gateway requests.
type Content struct {
	Pipeline *content.Pipeline
	State    State
}

func (*Content) Name() string { return "content-handler" }

func (*Content) CanHandle(ev *Event) bool {
	return subdomain.IsSubdomainGatewayRequest(ev.URL) || subdomain.IsPathGatewayRequest(ev.URL)
}

func (h *Content) Handle(ctx context.Context, ev *Event) (*http.Response, error) {
	log := ev.log()
	log.Debugf("content: handling request for %s", ev.URL)

	isSubdomain := subdomain.IsSubdomainGatewayRequest(ev.URL)
	isPath := subdomain.IsPathGatewayRequest(ev.URL)

	// the probe must answer before anything reads configuration, it is how
	// subdomain support is detected in the first place
	if parts := subdomain.PartsOf(ev.URL); parts.Protocol == uri.ProtocolIPFS && parts.ID == content.ProbeCID {
		return content.Text(http.StatusOK, "", nil), nil
	}

	settings := h.State.Settings(ctx)

	if !isSubdomain && isPath {
		if resp := h.isolate(ctx, ev, settings); resp != nil {
			return resp, nil
		}
	}

	if isSubdomain {
		if redirect, ok := query.Parse(ev.URL.RawQuery).Get(subdomain.RedirectParam); ok {
			hd := http.Header{}
			hd.Set("Location", redirect)
			return content.Text(http.StatusTemporaryRedirect, "Redirecting", hd), nil
		}
	}

	c, ok := ev.Resource.(uri.ContentURI)
	if !ok {
		err := errors.New("request does not name ipfs or ipns content")
		return pages.ServerError(ev.URL, err, ev.lines(), http.StatusBadRequest), nil
	}

	return h.Pipeline.Serve(ctx, &content.Request{
		HTTP:      ev.Request,
		URL:       ev.URL,
		URI:       c,
		RequestID: ev.RequestID,
		Logs:      ev.Logs,
		WaitUntil: ev.WaitUntil,
	}, settings), nil
}

// isolate moves a path gateway request onto its own origin when subdomains
// work, and otherwise warns unless the warning was accepted.
func (h *Content) isolate(ctx context.Context, ev *Event, settings content.Settings) *http.Response {
	log := ev.log()

	var invalid *uri.InvalidParametersError
	if _, err := subdomain.ToSubdomainRequest(ev.URL); errors.As(err, &invalid) {
		return pages.ServerError(ev.URL, err, ev.lines(), http.StatusBadRequest)
	}

	support := h.State.SubdomainSupport(ctx, ev.URL.Host)
	loc, err := subdomain.FindOriginIsolationRedirect(ev.URL, support)
	if err != nil {
		// an IP address or a path without identifier has no subdomain form
		log.Debugf("content: no subdomain form for %s: %v", ev.URL, err)
	}
	if loc != nil {
		log.Tracef("content: redirecting to subdomain %s", loc)
		hd := http.Header{}
		hd.Set("Location", loc.String())
		return content.Text(http.StatusMovedPermanently, "Gateway supports subdomain mode, redirecting to ensure Origin isolation..", hd)
	}

	if !settings.Config.AcceptOriginIsolationWarning {
		log.Debug("content: showing origin isolation warning")
		return pages.OriginIsolationWarning(ev.URL.String())
	}
	return nil
}
