// Package uri classifies incoming request URLs into content addresses.
//
// A request is one of: a subdomain gateway request (<id>.ipfs.<root>), a path
// gateway request (<root>/ipfs/<id>), a native ipfs:// or ipns:// URL, a
// request for the gateway's own pages, or a request for somebody else's
// origin. Content requests carry all three canonical URL forms.
package uri

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/dnslink"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/query"
	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multibase"
)

const (
	subdomainIPFS = ".ipfs."
	subdomainIPNS = ".ipns."

	// GatewayParam carries gateway hints on content URLs.
	GatewayParam = "gateway"
)

// ParseString classifies a string URL. Strings starting with /ipfs/ or
// /ipns/ are treated as shorthand for the native scheme.
func ParseString(s string, root *url.URL) (Resolvable, error) {
	switch {
	case strings.HasPrefix(s, "/ipfs/"):
		s = "ipfs://" + strings.TrimPrefix(s, "/ipfs/")
	case strings.HasPrefix(s, "/ipns/"):
		s = "ipns://" + strings.TrimPrefix(s, "/ipns/")
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return Parse(u, root)
}

// Parse classifies u relative to the gateway's root origin. The only error
// returned is *InvalidParametersError, for identifiers on the root origin
// that cannot be parsed.
func Parse(u *url.URL, root *url.URL) (Resolvable, error) {
	root = NormalizeRoot(root)

	for _, match := range []func(u, root *url.URL) (Resolvable, error){
		asSubdomainMatch,
		asPathMatch,
		asNativeMatch,
	} {
		res, err := match(u, root)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}

	if u.Host == root.Host {
		return &Internal{URL: u}, nil
	}
	return &External{URL: u}, nil
}

// NormalizeRoot strips a subdomain gateway prefix from root so that
// <id>.ipfs.example.com becomes example.com.
func NormalizeRoot(root *url.URL) *url.URL {
	host := root.Host
	for _, marker := range []string{subdomainIPFS, subdomainIPNS} {
		if idx := strings.LastIndex(host, marker); idx != -1 {
			host = host[idx+len(marker):]
		}
	}
	if host == root.Host {
		return root
	}
	return &url.URL{Scheme: root.Scheme, Host: host}
}

func isHTTP(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}

// parts of the input URL carried over into every canonical form
type residual struct {
	pathname string
	params   query.Params
	hash     string
}

func residualOf(u *url.URL, pathname string) residual {
	r := residual{pathname: pathname, params: query.Parse(u.RawQuery)}
	if u.Fragment != "" {
		r.hash = "#" + u.EscapedFragment()
	}
	return r
}

func asSubdomainMatch(u, root *url.URL) (Resolvable, error) {
	if !isHTTP(u) {
		return nil, nil
	}
	if net.ParseIP(u.Hostname()) != nil {
		return nil, nil
	}

	pathname := u.EscapedPath()
	if pathname == "" {
		pathname = "/"
	}
	res := residualOf(u, pathname)

	if id, host, ok := strings.Cut(u.Host, subdomainIPFS); ok {
		return toIPFS(TypeSubdomain, id, gatewayHints(res.params), host, res, root)
	}

	if id, host, ok := strings.Cut(u.Host, subdomainIPNS); ok {
		out, err := toIPNS(TypeSubdomain, id, res, root)
		if err == nil {
			return out, nil
		}
		if dnslink.IsInlinedDNSLink(id) {
			return toDNSLink(TypeSubdomain, dnslink.DecodeLabel(id), res, root), nil
		}
		if host == root.Host {
			return nil, err
		}
	}

	return nil, nil
}

func asPathMatch(u, root *url.URL) (Resolvable, error) {
	if !isHTTP(u) {
		return nil, nil
	}

	p := u.EscapedPath()
	switch {
	case strings.HasPrefix(p, "/ipfs/"):
		id, rest := splitIdentifier(strings.TrimPrefix(p, "/ipfs/"))
		res := residualOf(u, rest)
		return toIPFS(TypePath, unescapePath(id), gatewayHints(res.params), u.Host, res, root)
	case strings.HasPrefix(p, "/ipns/"):
		id, rest := splitIdentifier(strings.TrimPrefix(p, "/ipns/"))
		id = unescapePath(id)
		if id == "" {
			return nil, nil
		}
		res := residualOf(u, rest)
		if out, err := toIPNS(TypePath, id, res, root); err == nil {
			return out, nil
		}
		return toDNSLink(TypePath, id, res, root), nil
	}
	return nil, nil
}

func asNativeMatch(u, root *url.URL) (Resolvable, error) {
	pathname := u.EscapedPath()
	if pathname == "" {
		pathname = "/"
	}
	res := residualOf(u, pathname)

	switch u.Scheme {
	case ProtocolIPFS:
		return toIPFS(TypeNative, u.Host, gatewayHints(res.params), "", res, root)
	case ProtocolIPNS:
		if u.Host == "" {
			return nil, nil
		}
		if out, err := toIPNS(TypeNative, u.Host, res, root); err == nil {
			return out, nil
		}
		return toDNSLink(TypeNative, u.Host, res, root), nil
	}
	return nil, nil
}

// splitIdentifier splits "<id>/a/b" into "<id>" and "/a/b".
func splitIdentifier(p string) (string, string) {
	id, rest, _ := strings.Cut(p, "/")
	return id, "/" + rest
}

func unescapePath(s string) string {
	if v, err := url.PathUnescape(s); err == nil {
		return v
	}
	return s
}

func gatewayHints(params query.Params) []*url.URL {
	var out []*url.URL
	for _, s := range params.GetAll(GatewayParam) {
		if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
			out = append(out, u)
		}
	}
	return out
}

func toIPFS(t Type, id string, gateways []*url.URL, host string, res residual, root *url.URL) (Resolvable, error) {
	if id == "" {
		return nil, nil
	}

	c, err := ParseCID(id)
	if err != nil {
		// throw for http://localhost/ipfs/invalid, fall through for
		// http://example.com/ipfs/invalid
		if host == root.Host {
			return nil, err
		}
		return nil, nil
	}

	var hints []string
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			hints = append(hints, s)
		}
	}
	for _, gw := range gateways {
		add(gw.String())
	}
	if host != "" && host != root.Host {
		add(root.Scheme + "://" + host + "/")
	}

	search := res.params.Without(GatewayParam)
	if len(hints) > 0 {
		search = search.Set(GatewayParam, hints...)
	}
	tail := res.pathname + search.Search() + res.hash

	subdomainID, err := CanonicalCID(c)
	if err != nil {
		return nil, &InvalidParametersError{Message: fmt.Sprintf("Could not encode CID %q", id), Err: err}
	}

	out := &IPFS{CID: c}
	out.Type = t
	if out.SubdomainURL, err = url.Parse(root.Scheme + "://" + subdomainID + subdomainIPFS + root.Host + tail); err != nil {
		return nil, err
	}
	if out.PathURL, err = url.Parse(root.Scheme + "://" + root.Host + "/ipfs/" + id + tail); err != nil {
		return nil, err
	}
	if out.NativeURL, err = url.Parse("ipfs://" + id + tail); err != nil {
		return nil, err
	}
	for _, h := range hints {
		if u, err := url.Parse(h); err == nil {
			out.Gateways = append(out.Gateways, u)
		}
	}
	return out, nil
}

func toIPNS(t Type, id string, res residual, root *url.URL) (*IPNS, error) {
	if id == "" {
		return nil, &InvalidParametersError{Message: "Could not parse PeerId from empty string"}
	}

	pid, err := ParsePeerID(id)
	if err != nil {
		return nil, err
	}
	name, err := CanonicalPeerID(pid)
	if err != nil {
		return nil, &InvalidParametersError{Message: fmt.Sprintf("Could not encode PeerId %q", id), Err: err}
	}

	tail := res.pathname + res.params.Search() + res.hash
	out := &IPNS{PeerID: pid}
	out.Type = t
	if out.SubdomainURL, err = url.Parse(root.Scheme + "://" + name + subdomainIPNS + root.Host + tail); err != nil {
		return nil, err
	}
	if out.PathURL, err = url.Parse(root.Scheme + "://" + root.Host + "/ipns/" + id + tail); err != nil {
		return nil, err
	}
	if out.NativeURL, err = url.Parse("ipns://" + id + tail); err != nil {
		return nil, err
	}
	return out, nil
}

func toDNSLink(t Type, domain string, res residual, root *url.URL) Resolvable {
	tail := res.pathname + res.params.Search() + res.hash
	out := &DNSLink{Domain: domain}
	out.Type = t

	var err error
	if out.SubdomainURL, err = url.Parse(root.Scheme + "://" + dnslink.EncodeLabel(domain) + subdomainIPNS + root.Host + tail); err != nil {
		return nil
	}
	if out.PathURL, err = url.Parse(root.Scheme + "://" + root.Host + "/ipns/" + domain + tail); err != nil {
		return nil
	}
	if out.NativeURL, err = url.Parse("ipns://" + domain + tail); err != nil {
		return nil
	}
	return out
}

// ParseCID parses a CIDv0 or a CID in one of the multibases a gateway URL can
// carry. Failures are reported as *InvalidParametersError.
func ParseCID(s string) (cid.Cid, error) {
	if !strings.HasPrefix(s, "Q") && !isSupportedMultibase(s) {
		return cid.Undef, &InvalidParametersError{
			Message: fmt.Sprintf("Could not parse CID from string %q", s),
			Err:     fmt.Errorf("unsupported multibase prefix"),
		}
	}
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, &InvalidParametersError{Message: fmt.Sprintf("Could not parse CID from string %q", s), Err: err}
	}
	return c, nil
}

func isSupportedMultibase(s string) bool {
	if s == "" {
		return false
	}
	switch multibase.Encoding(s[0]) {
	case multibase.Base32, multibase.Base36, multibase.Base16, multibase.Base16Upper, multibase.Base58BTC:
		return true
	}
	return false
}

// ParsePeerID parses a base58 multihash peer ID or a libp2p-key CID.
func ParsePeerID(s string) (peer.ID, error) {
	pid, err := peer.Decode(s)
	if err == nil {
		return pid, nil
	}
	c, cerr := ParseCID(s)
	if cerr != nil {
		return "", &InvalidParametersError{Message: fmt.Sprintf("Could not parse PeerId from string %q", s), Err: err}
	}
	pid, err = peer.FromCid(c)
	if err != nil {
		return "", &InvalidParametersError{Message: fmt.Sprintf("Could not parse PeerId from string %q", s), Err: err}
	}
	return pid, nil
}

// CanonicalCID returns the CIDv1 base32 form used in DNS labels. Base58 is
// case sensitive and does not survive a resolver lowercasing the label.
func CanonicalCID(c cid.Cid) (string, error) {
	if c.Version() == 0 {
		c = cid.NewCidV1(c.Type(), c.Hash())
	}
	return c.StringOfBase(multibase.Base32)
}

// CanonicalPeerID returns the base36 libp2p-key CID form of a peer ID.
func CanonicalPeerID(pid peer.ID) (string, error) {
	return peer.ToCid(pid).StringOfBase(multibase.Base36)
}
