package content

import (
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/fetcher"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/query"
)

// Query parameters recognized on content requests.
const (
	ParamFormat      = "format"
	ParamDownload    = "download"
	ParamCARVersion  = "car-version"
	ParamCAROrder    = "car-order"
	ParamCARDups     = "car-dups"
	ParamDAGScope    = "dag-scope"
	ParamEntityBytes = "entity-bytes"
)

var formats = map[string]string{
	"raw":         fetcher.MediaTypeRaw,
	"car":         fetcher.MediaTypeCAR,
	"tar":         fetcher.MediaTypeTAR,
	"json":        fetcher.MediaTypeJSON,
	"cbor":        fetcher.MediaTypeCBOR,
	"dag-json":    fetcher.MediaTypeDagJSON,
	"dag-cbor":    fetcher.MediaTypeDagCBOR,
	"ipns-record": fetcher.MediaTypeIPNSRecord,
}

var carParams = []string{ParamCARVersion, ParamCAROrder, ParamCARDups, ParamDAGScope, ParamEntityBytes}

// NegotiateAccept returns the Accept header to send to the content fetcher
// and whether the response should be rendered as HTML for a browser.
//
// A format query parameter, or any CAR parameter, overrides the header. An
// Accept naming a supported IPLD type is kept as is, "*/*" is dropped, and
// one asking for text/html is dropped with renderHTML set.
func NegotiateAccept(accept string, params query.Params) (string, bool) {
	format, _ := params.Get(ParamFormat)
	isCAR := format == "car"
	if format == "" {
		for _, p := range carParams {
			if params.Has(p) {
				isCAR = true
				break
			}
		}
	}
	if isCAR {
		return carAccept(params), false
	}
	if mt, ok := formats[format]; ok {
		return mt, false
	}

	accept = strings.TrimSpace(accept)
	if accept == "" {
		return "", false
	}
	types := mediaTypes(accept)
	for _, t := range types {
		if isSupported(t) {
			return accept, false
		}
	}
	if len(types) == 1 && types[0] == "*/*" {
		return "", false
	}
	for _, t := range types {
		if t == "text/html" {
			return "", true
		}
	}
	return accept, false
}

func carAccept(params query.Params) string {
	get := func(key, def string) string {
		if v, ok := params.Get(key); ok && v != "" {
			return v
		}
		return def
	}
	return fmt.Sprintf("%s; version=%s; order=%s; dups=%s",
		fetcher.MediaTypeCAR,
		get(ParamCARVersion, "1"),
		get(ParamCAROrder, "unk"),
		get(ParamCARDups, "y"))
}

func mediaTypes(accept string) []string {
	var out []string
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out = append(out, mt)
	}
	return out
}

func isSupported(mediaType string) bool {
	for _, mt := range formats {
		if mt == mediaType {
			return true
		}
	}
	return false
}

// renderable reports whether a response of contentType should be shown as
// an entity page when the browser asked for HTML.
func renderable(contentType string) bool {
	mt, _, _ := mime.ParseMediaType(contentType)
	switch mt {
	case mediaTypeDagPB, fetcher.MediaTypeDagJSON, fetcher.MediaTypeDagCBOR, fetcher.MediaTypeCBOR, fetcher.MediaTypeRaw:
		return true
	}
	return false
}

const mediaTypeDagPB = "application/vnd.ipld.dag-pb"

// forceDownload sets an attachment disposition, keeping any filename.
func forceDownload(h http.Header, name string) {
	cd := h.Get("Content-Disposition")
	switch {
	case cd == "":
		if name == "" {
			h.Set("Content-Disposition", "attachment")
			return
		}
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	case strings.HasPrefix(strings.ToLower(cd), "inline"):
		h.Set("Content-Disposition", "attachment"+cd[len("inline"):])
	}
}
