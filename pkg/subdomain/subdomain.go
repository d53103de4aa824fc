// Package subdomain converts path gateway requests into subdomain gateway
// requests and decides when a request must be moved onto its own origin.
package subdomain

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/dnslink"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/query"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/uri"
)

// RedirectParam carries the path, query and hash of the original request
// across the hop onto the subdomain origin.
const RedirectParam = "helia-redirect"

var ErrNotPathRequest = errors.New("not a path gateway request")

var (
	subdomainRegex = regexp.MustCompile(`^[^/]+\.ip[fn]s\.[^/]+$`)
	pathRegex      = regexp.MustCompile(`^/ip[fn]s/[^/]+`)
)

// Support is the tri-state "subdomains supported" flag of a parent domain.
type Support int

const (
	SupportUnknown Support = iota
	SupportTrue
	SupportFalse
)

func (s Support) String() string {
	switch s {
	case SupportTrue:
		return "true"
	case SupportFalse:
		return "false"
	default:
		return "unknown"
	}
}

// SupportOf maps an optional boolean to a Support value.
func SupportOf(v *bool) Support {
	switch {
	case v == nil:
		return SupportUnknown
	case *v:
		return SupportTrue
	default:
		return SupportFalse
	}
}

// IsSubdomainGatewayRequest reports whether u is addressed as <id>.<ns>.<domain>.
func IsSubdomainGatewayRequest(u *url.URL) bool {
	return subdomainRegex.MatchString(u.Hostname())
}

// IsPathGatewayRequest reports whether u is addressed as <domain>/<ns>/<id>.
func IsPathGatewayRequest(u *url.URL) bool {
	return pathRegex.MatchString(u.EscapedPath())
}

// Parts is a subdomain gateway host split into its pieces.
type Parts struct {
	// CID, peer ID or DNSLink name. DNSLink names are returned decoded.
	ID string
	// "ipfs" or "ipns", empty when the host is not a subdomain gateway host.
	Protocol string
	// Host the gateway is mounted on, including the port.
	ParentDomain string
}

// PartsOf inspects the labels of u's host from right to left, so hosts like
// docs.ipfs.tech.ipns.localhost resolve to the DNSLink docs.ipfs.tech.
func PartsOf(u *url.URL) Parts {
	labels := strings.Split(u.Host, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		if labels[i] != uri.ProtocolIPFS && labels[i] != uri.ProtocolIPNS {
			continue
		}
		p := Parts{
			ID:           strings.Join(labels[:i], "."),
			Protocol:     labels[i],
			ParentDomain: strings.Join(labels[i+1:], "."),
		}
		if p.Protocol == uri.ProtocolIPNS && dnslink.IsInlinedDNSLink(p.ID) {
			p.ID = dnslink.DecodeLabel(p.ID)
		}
		return p
	}
	return Parts{ParentDomain: u.Host}
}

// ToSubdomainRequest turns /<ns>/<id>/<rest>?<query>#<hash> on host into
// <id>.<ns>.<host>/?helia-redirect=<rest>?<query>#<hash>. Identifiers are
// re-encoded into a case-insensitive form that fits in a DNS label.
func ToSubdomainRequest(loc *url.URL) (*url.URL, error) {
	segments := strings.Split(strings.TrimPrefix(loc.EscapedPath(), "/"), "/")
	// some static hosts serve every path below /index.html
	if len(segments) > 0 && segments[0] == "index.html" {
		segments = segments[1:]
	}
	if len(segments) < 2 || segments[1] == "" {
		return nil, ErrNotPathRequest
	}

	ns := segments[0]
	id, err := url.PathUnescape(segments[1])
	if err != nil {
		return nil, &uri.InvalidParametersError{Message: fmt.Sprintf("Could not decode identifier %q", segments[1]), Err: err}
	}

	label, err := toLabel(ns, id)
	if err != nil {
		return nil, err
	}

	var residual string
	if len(segments) > 2 {
		residual = "/" + strings.Join(segments[2:], "/")
	}
	if loc.RawQuery != "" {
		residual += "?" + loc.RawQuery
	}
	if loc.Fragment != "" {
		residual += "#" + loc.EscapedFragment()
	}

	out := &url.URL{
		Scheme: loc.Scheme,
		Host:   strings.ToLower(label + "." + ns + "." + loc.Host),
		Path:   "/",
	}
	if residual != "" && residual != "/" {
		out.RawQuery = RedirectParam + "=" + query.Escape(residual)
	}
	return out, nil
}

func toLabel(ns, id string) (string, error) {
	switch ns {
	case uri.ProtocolIPFS:
		c, err := uri.ParseCID(id)
		if err != nil {
			return "", err
		}
		return uri.CanonicalCID(c)
	case uri.ProtocolIPNS:
		pid, err := uri.ParsePeerID(id)
		if err == nil {
			return uri.CanonicalPeerID(pid)
		}
		if strings.Contains(id, ".") {
			return dnslink.EncodeLabel(id), nil
		}
		return "", err
	default:
		return "", &uri.InvalidParametersError{Message: fmt.Sprintf("Unknown namespace %q", ns)}
	}
}

// FindOriginIsolationRedirect returns the subdomain URL a path gateway
// request must be redirected to, or nil when no redirect is due: the request
// is already isolated, is not a content request, or subdomain support is not
// known to be available.
func FindOriginIsolationRedirect(loc *url.URL, supports Support) (*url.URL, error) {
	if IsSubdomainGatewayRequest(loc) {
		return nil, nil
	}
	if IsPathGatewayRequest(loc) && supports == SupportTrue {
		return ToSubdomainRequest(loc)
	}
	return nil, nil
}
