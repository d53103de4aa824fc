package subdomain

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/dnslink"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/uri"
)

// UpdateRedirect rewrites an ipfs:// or ipns:// Location header into a URL
// the browser can follow on the origin resource was served from. Subdomain
// origins get subdomain URLs, everything else gets path URLs.
func UpdateRedirect(resource *url.URL, header http.Header) {
	location := strings.TrimSpace(header.Get("Location"))
	if location == "" {
		return
	}

	u, err := resource.Parse(location)
	if err != nil {
		return
	}
	if strings.HasPrefix(u.Scheme, "http") {
		return
	}
	if u.Scheme != uri.ProtocolIPFS && u.Scheme != uri.ProtocolIPNS {
		return
	}

	tail := u.EscapedPath()
	if u.RawQuery != "" {
		tail += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		tail += "#" + u.EscapedFragment()
	}

	if parts := PartsOf(resource); parts.Protocol != "" && parts.ParentDomain != "" {
		hostname := u.Hostname()
		if u.Scheme == uri.ProtocolIPNS {
			hostname = dnslink.EncodeLabel(hostname)
		}
		location = resource.Scheme + "://" + hostname + "." + u.Scheme + "." + parts.ParentDomain + tail
	} else {
		location = resource.Scheme + "://" + resource.Host + "/" + u.Scheme + "/" + u.Hostname() + tail
	}

	header.Set("Location", location)
}
