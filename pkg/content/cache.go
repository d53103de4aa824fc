package content

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/cachestorage"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/query"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/uri"
)

// HeaderCacheExpires marks when a stored mutable response stops being
// served from the cache. It is internal to the gateway.
const HeaderCacheExpires = "sw-cache-expires"

// MutableTTL is how long ipns and DNSLink responses are served from cache.
const MutableTTL = time.Hour

// CacheKey identifies a stored response: the canonical subdomain URL without
// gateway hints, the negotiated Accept, the render flag and the request's
// If-None-Match.
func CacheKey(c uri.ContentURI, accept string, renderHTML bool, ifNoneMatch string) string {
	u := *c.Canonical().SubdomainURL
	u.RawQuery = query.Parse(u.RawQuery).Without(uri.GatewayParam).Encode()
	u.Fragment = ""
	u.RawFragment = ""
	return strings.Join([]string{u.String(), accept, strconv.FormatBool(renderHTML), ifNoneMatch}, "|")
}

// IsMutable reports whether c names content that can change.
func IsMutable(c uri.ContentURI) bool {
	return c.Protocol() != uri.ProtocolIPFS
}

// BucketFor returns the name of the bucket c is cached in.
func BucketFor(c uri.ContentURI) string {
	if IsMutable(c) {
		return cachestorage.MutableName
	}
	return cachestorage.ImmutableName
}

// HasExpired reports whether a stored response's expiry marker is in the
// past. Entries without a marker never expire.
func HasExpired(h http.Header, now time.Time) bool {
	v := h.Get(HeaderCacheExpires)
	if v == "" {
		return false
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return true
	}
	return t.Before(now)
}

// SetExpires marks h to expire ttl after now.
func SetExpires(h http.Header, now time.Time, ttl time.Duration) {
	h.Set(HeaderCacheExpires, now.Add(ttl).UTC().Format(http.TimeFormat))
}

// ShouldCache reports whether resp, the answer to req, may be stored.
// Partial content is never stored, and neither is anything requested with
// no-cache.
func ShouldCache(req *http.Request, resp *http.Response) bool {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	if resp.StatusCode == http.StatusPartialContent {
		return false
	}
	if hasNoCache(req.Header.Get("Pragma")) || hasNoCache(req.Header.Get("Cache-Control")) {
		return false
	}
	return true
}

func hasNoCache(v string) bool {
	for _, d := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(d), "no-cache") {
			return true
		}
	}
	return false
}

// stripHints returns u without gateway hints, or nil when it carries none.
func stripHints(u *url.URL) *url.URL {
	params := query.Parse(u.RawQuery)
	if !params.Has(uri.GatewayParam) {
		return nil
	}
	out := *u
	out.RawQuery = params.Without(uri.GatewayParam).Encode()
	return &out
}
