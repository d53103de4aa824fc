package pages

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/fetcher"
)

var originIsolationBody = withBody("origin-isolation-warning", `
<p>This gateway cannot serve <code>{{.Props.Location}}</code> from an isolated origin. Content loaded
this way shares storage and cookies with every other site served from this origin.</p>
<p><a href="{{.Props.Location}}">Load it anyway</a> only if you trust it, or configure the gateway with
<code>acceptOriginIsolationWarning</code> to stop seeing this page.</p>
`)

// OriginIsolationWarning asks the user to accept loading location without
// origin isolation.
func OriginIsolationWarning(location string) *http.Response {
	props := struct {
		Location string `json:"location"`
	}{location}
	return response(http.StatusOK, nil, page(originIsolationBody, "No origin isolation", props))
}

// DirEntry is one link of a UnixFS directory.
type DirEntry struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
	Size uint64 `json:"size"`
	Href string `json:"href"`
}

type dagJSONDir struct {
	Links []struct {
		Hash  map[string]string `json:"Hash"`
		Name  string            `json:"Name"`
		Tsize uint64            `json:"Tsize"`
	} `json:"Links"`
}

// ParseDagJSONDirectory reads the links of a dag-pb node in dag-json form.
// Hrefs are relative to dir.
func ParseDagJSONDirectory(dir string, body []byte) ([]DirEntry, error) {
	var node dagJSONDir
	if err := json.Unmarshal(body, &node); err != nil {
		return nil, fmt.Errorf("pages: decode directory: %w", err)
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	out := make([]DirEntry, 0, len(node.Links))
	for _, l := range node.Links {
		out = append(out, DirEntry{
			Name: l.Name,
			CID:  l.Hash["/"],
			Size: l.Tsize,
			Href: path.Join(dir, l.Name),
		})
	}
	return out, nil
}

type DirectoryDetails struct {
	Path    string     `json:"path"`
	CID     string     `json:"cid"`
	Parent  string     `json:"parent,omitempty"`
	Entries []DirEntry `json:"entries"`
}

var directoryBody = withBody("directory", `
{{with .Props.CID}}<p class="muted">{{.}}</p>{{end}}
<table><tr><th>Name</th><th>CID</th><th>Size</th></tr>
{{with .Props.Parent}}<tr><td><a href="{{.}}">..</a></td><td></td><td></td></tr>{{end}}
{{range .Props.Entries}}<tr><td><a href="{{.Href}}">{{.Name}}</a></td><td class="muted">{{.CID}}</td><td>{{.Size}}</td></tr>
{{end}}</table>
`)

// Directory renders a directory listing. header is the upstream response
// header; the caching and identity headers in it are kept.
func Directory(d DirectoryDetails, status int, header http.Header) *http.Response {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Del("Content-Disposition")
	h.Del(fetcher.HeaderDirectory)
	h.Set("Etag", fmt.Sprintf(`"DirIndex-%s"`, d.CID))
	return response(status, h, page(directoryBody, d.Path, d))
}

type EntityDetails struct {
	CID         string            `json:"cid"`
	Path        string            `json:"ipfsPath"`
	ContentType string            `json:"contentType"`
	Entity      string            `json:"entity"`
	Request     map[string]string `json:"request"`
	Response    map[string]string `json:"response"`
}

var entityBody = withBody("entity", `
<p><code>{{.Props.Path}}</code> is <b>{{.Props.ContentType}}</b>.</p>
<pre id="entity">{{.Props.Entity}}</pre>
`)

// Entity renders a non-file IPLD block for a browser. The block is
// embedded base64 encoded.
func Entity(d EntityDetails, block []byte, status int, header http.Header) *http.Response {
	d.Entity = base64.StdEncoding.EncodeToString(block)
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Del("Content-Disposition")
	h.Set("Cache-Control", "public, max-age=604800, stale-while-revalidate=2678400")
	h.Set("Etag", fmt.Sprintf(`"DagIndex-%s"`, d.CID))
	return response(status, h, page(entityBody, d.CID, d))
}
