package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/content"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/query"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/uri"
)

// URIParam carries an ipfs:// or ipns:// URI to open, as registered by
// navigator.registerProtocolHandler.
const URIParam = "uri"

type URIRouter struct{}

func (URIRouter) Name() string { return "uri-router-handler" }

func (URIRouter) CanHandle(ev *Event) bool {
	p := ev.URL.Path
	return (p == "/ipfs/" || p == "/ipns/") && query.Parse(ev.URL.RawQuery).Has(URIParam)
}

func (URIRouter) Handle(_ context.Context, ev *Event) (*http.Response, error) {
	raw, _ := query.Parse(ev.URL.RawQuery).Get(URIParam)
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != uri.ProtocolIPFS && target.Scheme != uri.ProtocolIPNS) || target.Host == "" {
		ev.log().Debugf("uri-router: could not redirect %q", raw)
		return content.Text(http.StatusBadRequest, "", nil), nil
	}

	location := "/" + target.Scheme + "/" + target.Hostname() + target.EscapedPath()
	if target.RawQuery != "" {
		location += "?" + target.RawQuery
	}
	if target.Fragment != "" {
		location += "#" + target.EscapedFragment()
	}
	ev.log().Debugf("uri-router: redirecting %s to %s", raw, location)

	h := http.Header{}
	h.Set("Location", location)
	return content.Text(http.StatusMovedPermanently, "", h), nil
}
