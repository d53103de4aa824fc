package content

import (
	"net/http"
	"testing"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/fetcher"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/query"
	"github.com/stretchr/testify/assert"
)

func TestNegotiateAccept(t *testing.T) {
	tests := []struct {
		name   string
		accept string
		query  string
		want   string
		render bool
	}{
		{name: "empty", want: ""},
		{name: "any", accept: "*/*", want: ""},
		{name: "browser", accept: "text/html,application/xhtml+xml,*/*;q=0.8", render: true},
		{name: "ipld passthrough", accept: fetcher.MediaTypeDagJSON, want: fetcher.MediaTypeDagJSON},
		{name: "ipld among others", accept: "text/html, application/vnd.ipld.raw", want: "text/html, application/vnd.ipld.raw"},
		{name: "unknown kept", accept: "image/webp", want: "image/webp"},
		{name: "format wins", accept: "text/html", query: "format=raw", want: fetcher.MediaTypeRaw},
		{name: "car defaults", query: "format=car", want: "application/vnd.ipld.car; version=1; order=unk; dups=y"},
		{name: "car param implies car", query: "car-order=dfs", want: "application/vnd.ipld.car; version=1; order=dfs; dups=y"},
		{name: "dag-scope implies car", query: "dag-scope=entity", want: "application/vnd.ipld.car; version=1; order=unk; dups=y"},
		{name: "ipns record", query: "format=ipns-record", want: fetcher.MediaTypeIPNSRecord},
		{name: "unknown format ignored", accept: "*/*", query: "format=zip", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, render := NegotiateAccept(tt.accept, query.Parse(tt.query))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.render, render)
		})
	}
}

func TestRenderable(t *testing.T) {
	assert.True(t, renderable("application/vnd.ipld.dag-pb"))
	assert.True(t, renderable("application/vnd.ipld.dag-json; charset=utf-8"))
	assert.True(t, renderable(fetcher.MediaTypeCBOR))
	assert.False(t, renderable("text/plain"))
	assert.False(t, renderable(""))
}

func TestForceDownload(t *testing.T) {
	h := http.Header{}
	forceDownload(h, "a.txt")
	assert.Equal(t, `attachment; filename=a.txt`, h.Get("Content-Disposition"))

	h = http.Header{}
	forceDownload(h, "")
	assert.Equal(t, "attachment", h.Get("Content-Disposition"))

	h = http.Header{"Content-Disposition": {`inline; filename="b.png"`}}
	forceDownload(h, "ignored.png")
	assert.Equal(t, `attachment; filename="b.png"`, h.Get("Content-Disposition"))

	h = http.Header{"Content-Disposition": {`attachment; filename="c.zip"`}}
	forceDownload(h, "c.zip")
	assert.Equal(t, `attachment; filename="c.zip"`, h.Get("Content-Disposition"))
}
