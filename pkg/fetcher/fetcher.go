// Package fetcher retrieves content addressed resources for the gateway.
//
// A resource is a native URL such as ipfs://<cid>/path?format=raw or
// ipns://<name>/path. Fetchers answer with an *http.Response carrying the
// upstream status, or with one of the typed errors below.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrNotFound           = errors.New("fetcher: not found")
	ErrUnsupportedHash    = errors.New("fetcher: unsupported hash algorithm")
	ErrVerificationFailed = errors.New("fetcher: block does not match its hash")
	ErrBadResource        = errors.New("fetcher: resource is not an ipfs:// or ipns:// URL")
)

// HeaderDirectory marks a response whose body is the dag-json form of a
// UnixFS directory.
const HeaderDirectory = "X-Ipfs-Directory"

type ProviderType string

const (
	ProviderBitswap          ProviderType = "bitswap"
	ProviderTrustlessGateway ProviderType = "trustless-gateway"
)

// Provider describes where content was found.
type Provider struct {
	Type       ProviderType `json:"type"`
	Routing    string       `json:"routing"`
	PeerID     string       `json:"peerId,omitempty"`
	Multiaddrs []string     `json:"multiaddrs,omitempty"`
	URL        string       `json:"url,omitempty"`
}

// ProgressEvent is emitted while a fetch is in flight. Provider discovery
// events have a Type ending in ":found-provider".
type ProgressEvent struct {
	Type     string
	Provider Provider
}

func (e ProgressEvent) IsFoundProvider() bool {
	return strings.HasSuffix(e.Type, ":found-provider")
}

type Options struct {
	// Request headers to forward, Accept in particular.
	Headers http.Header
	// Gateway hints tried before the configured gateways.
	Gateways   []*url.URL
	OnProgress func(ProgressEvent)

	SupportDirectoryIndexes bool
	SupportWebRedirects     bool
}

func (o Options) emit(evt ProgressEvent) {
	if o.OnProgress != nil {
		o.OnProgress(evt)
	}
}

// Fetcher retrieves a resource. Redirects are never followed, they are
// returned to the caller.
type Fetcher interface {
	Fetch(ctx context.Context, resource string, opts Options) (*http.Response, error)
}

// Resource is a parsed native URL.
type Resource struct {
	// "ipfs" or "ipns"
	Namespace string
	// CID, peer ID or DNSLink domain
	Name     string
	Path     string
	RawQuery string
}

// ParseResource parses ipfs://<cid>/<path> and ipns://<name>/<path>.
func ParseResource(resource string) (*Resource, error) {
	u, err := url.Parse(resource)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResource, err)
	}
	if (u.Scheme != "ipfs" && u.Scheme != "ipns") || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrBadResource, resource)
	}
	return &Resource{Namespace: u.Scheme, Name: u.Host, Path: u.EscapedPath(), RawQuery: u.RawQuery}, nil
}

// ContentPath returns /<ns>/<name><path>.
func (r *Resource) ContentPath() string {
	return "/" + r.Namespace + "/" + r.Name + r.Path
}

// IsRoot reports whether the resource addresses the root of its DAG.
func (r *Resource) IsRoot() bool {
	return r.Path == "" || r.Path == "/"
}

func newResponse(status int, header http.Header, body io.ReadCloser, length int64) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	if body == nil {
		body = http.NoBody
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          body,
		ContentLength: length,
	}
}

// Media types of the IPLD response formats.
const (
	MediaTypeRaw        = "application/vnd.ipld.raw"
	MediaTypeCAR        = "application/vnd.ipld.car"
	MediaTypeTAR        = "application/x-tar"
	MediaTypeJSON       = "application/json"
	MediaTypeCBOR       = "application/cbor"
	MediaTypeDagJSON    = "application/vnd.ipld.dag-json"
	MediaTypeDagCBOR    = "application/vnd.ipld.dag-cbor"
	MediaTypeIPNSRecord = "application/vnd.ipfs.ipns-record"
)

// acceptedMediaType returns the first IPLD media type named in accept, or "".
func acceptedMediaType(accept string) string {
	for _, part := range strings.Split(accept, ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mt {
		case MediaTypeRaw, MediaTypeCAR, MediaTypeTAR, MediaTypeJSON, MediaTypeCBOR,
			MediaTypeDagJSON, MediaTypeDagCBOR, MediaTypeIPNSRecord:
			return mt
		}
	}
	return ""
}
