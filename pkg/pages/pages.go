// Package pages renders the HTML pages the gateway answers with when it
// cannot, or should not, return content: server and fetch errors, the origin
// isolation warning, and the directory and entity views.
//
// Every page embeds the data it was rendered from, JSON encoded then base64
// encoded, as a JSON string in a <script type="application/json" id="props">
// element so bug reports can carry it verbatim.
package pages

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
)

const contentTypeHTML = "text/html; charset=utf-8"

var layout = template.Must(template.New("layout").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;margin:2rem auto;max-width:60rem;padding:0 1rem;color:#222}
pre{background:#f4f4f4;padding:.75rem;overflow:auto;white-space:pre-wrap;word-break:break-all}
table{border-collapse:collapse;width:100%}td,th{text-align:left;padding:.25rem .5rem;border-bottom:1px solid #ddd}
.muted{color:#777}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{template "body" .}}
<script type="application/json" id="props">{{.Encoded}}</script>
</body>
</html>
`))

// page renders body inside the layout. body is a template defining "body".
func page(body *template.Template, title string, props interface{}) []byte {
	raw, err := json.Marshal(props)
	if err != nil {
		panic(fmt.Sprintf("pages: encode %q: %v", title, err))
	}

	var buf bytes.Buffer
	err = body.ExecuteTemplate(&buf, "layout", struct {
		Title   string
		Props   interface{}
		Encoded string
	}{title, props, base64.StdEncoding.EncodeToString(raw)})
	if err != nil {
		// templates are static, a failure here is a programming error
		panic(fmt.Sprintf("pages: render %q: %v", title, err))
	}
	return buf.Bytes()
}

func withBody(name, text string) *template.Template {
	t := template.Must(layout.Clone())
	return template.Must(t.New(name).Parse(`{{define "body"}}` + text + `{{end}}`))
}

func response(status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", contentTypeHTML)
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// HeaderMap flattens h into one value per key, the way the UI displays it.
func HeaderMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[http.CanonicalHeaderKey(k)] = joinValues(v)
		}
	}
	return out
}

func joinValues(v []string) string {
	if len(v) == 1 {
		return v[0]
	}
	var b bytes.Buffer
	for i, s := range v {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s)
	}
	return b.String()
}
