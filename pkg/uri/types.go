package uri

import (
	"fmt"
	"net/url"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Type is the shape of a classified request.
type Type string

const (
	TypeSubdomain Type = "subdomain"
	TypePath      Type = "path"
	TypeNative    Type = "native"
	TypeInternal  Type = "internal"
	TypeExternal  Type = "external"
)

const (
	ProtocolIPFS    = "ipfs"
	ProtocolIPNS    = "ipns"
	ProtocolDNSLink = "dnslink"
)

// Resolvable is one of IPFS, IPNS, DNSLink, Internal or External.
type Resolvable interface {
	Kind() Type
	String() string
}

// ContentURI is a Resolvable that addresses content: IPFS, IPNS or DNSLink.
type ContentURI interface {
	Resolvable
	Protocol() string
	Identifier() string
	Canonical() *Content
}

// Content holds the three equivalent representations of a content request.
type Content struct {
	Type         Type
	SubdomainURL *url.URL
	PathURL      *url.URL
	NativeURL    *url.URL
}

func (c *Content) Kind() Type          { return c.Type }
func (c *Content) Canonical() *Content { return c }
func (c *Content) String() string      { return c.NativeURL.String() }

// IPFS is a request for an immutable CID.
type IPFS struct {
	Content
	CID      cid.Cid
	Gateways []*url.URL
}

func (i *IPFS) Protocol() string   { return ProtocolIPFS }
func (i *IPFS) Identifier() string { return i.CID.String() }

// IPNS is a request for a name derived from a public key.
type IPNS struct {
	Content
	PeerID peer.ID
}

func (i *IPNS) Protocol() string   { return ProtocolIPNS }
func (i *IPNS) Identifier() string { return i.PeerID.String() }

// DNSLink is a request for a DNSLink domain.
type DNSLink struct {
	Content
	Domain string
}

func (d *DNSLink) Protocol() string   { return ProtocolDNSLink }
func (d *DNSLink) Identifier() string { return d.Domain }

// Internal is a request for a page served by the gateway itself.
type Internal struct {
	URL *url.URL
}

func (i *Internal) Kind() Type     { return TypeInternal }
func (i *Internal) String() string { return i.URL.String() }

// External is a request for a third party web resource.
type External struct {
	URL *url.URL
}

func (e *External) Kind() Type     { return TypeExternal }
func (e *External) String() string { return e.URL.String() }

// InvalidParametersError is returned when an identifier on the gateway's own
// origin cannot be parsed. Callers answer it with 400 Bad Request.
type InvalidParametersError struct {
	Message string
	Err     error
}

func (e *InvalidParametersError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s - %v", e.Message, e.Err)
}

func (e *InvalidParametersError) Unwrap() error { return e.Err }
