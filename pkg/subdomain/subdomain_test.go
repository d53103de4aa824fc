package subdomain

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/uri"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cidV0   = "QmbQDovX7wRe9ek7u6QXe9zgCXkTzoUSsTFJEkrYV1HrVR"
	cidV1   = "bafybeigccimv3zqm5g4jt363faybagywkvqbrismoquogimy7kvz2sj7sq"
	ipnsKey = "k51qzi5uqu5dh9ihj4p2v5sl3hxvv27ryx2w0xrsv6jmmqi91t9xp8p9kaipc2"
)

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

func toSubdomain(t *testing.T, s string) string {
	t.Helper()
	out, err := ToSubdomainRequest(mustURL(t, s))
	require.NoError(t, err)
	return out.String()
}

func TestToSubdomainRequest(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{
			in:   "http://example.com/ipfs/" + cidV0 + "/foo/bar.txt",
			want: "http://" + cidV1 + ".ipfs.example.com/?helia-redirect=%2Ffoo%2Fbar.txt",
		},
		{
			in:   "https://example.com/ipfs/" + cidV0 + "/path/to/file?foo=bar&baz=qux#section2",
			want: "https://" + cidV1 + ".ipfs.example.com/?helia-redirect=%2Fpath%2Fto%2Ffile%3Ffoo%3Dbar%26baz%3Dqux%23section2",
		},
		{
			in:   "http://example.com/ipfs/" + cidV0,
			want: "http://" + cidV1 + ".ipfs.example.com/",
		},
		{
			in:   "http://example.com/ipfs/" + cidV0 + "/",
			want: "http://" + cidV1 + ".ipfs.example.com/",
		},
		{
			in:   "https://gateway.local/ipns/" + ipnsKey + "/blog/post",
			want: "https://" + ipnsKey + ".ipns.gateway.local/?helia-redirect=%2Fblog%2Fpost",
		},
		{
			in:   "http://mysite.local/ipns/foo.bar/baz",
			want: "http://foo-bar.ipns.mysite.local/?helia-redirect=%2Fbaz",
		},
		{
			in:   "http://example.com/index.html/ipfs/" + cidV0 + "/foo/bar.txt",
			want: "http://" + cidV1 + ".ipfs.example.com/?helia-redirect=%2Ffoo%2Fbar.txt",
		},
		{
			in:   "http://example.com/index.html/ipfs/" + cidV1 + "/foo/bar.txt",
			want: "http://" + cidV1 + ".ipfs.example.com/?helia-redirect=%2Ffoo%2Fbar.txt",
		},
		{
			in:   "http://localhost:3333/ipfs/" + cidV1 + "/1 - Barrel - Part 1 - alt.txt",
			want: "http://" + cidV1 + ".ipfs.localhost:3333/?helia-redirect=%2F1%2520-%2520Barrel%2520-%2520Part%25201%2520-%2520alt.txt",
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toSubdomain(t, tt.in), tt.in)
	}
}

func TestToSubdomainRequest_RedirectParamRoundTrips(t *testing.T) {
	out, err := ToSubdomainRequest(mustURL(t, "https://example.com/ipfs/"+cidV1+"/a/b?x=1&y=2#frag"))
	require.NoError(t, err)
	assert.Equal(t, "/a/b?x=1&y=2#frag", out.Query().Get(RedirectParam))
}

func TestToSubdomainRequest_Errors(t *testing.T) {
	_, err := ToSubdomainRequest(mustURL(t, "http://example.com/ipfs/"))
	assert.ErrorIs(t, err, ErrNotPathRequest)

	_, err = ToSubdomainRequest(mustURL(t, "http://example.com/"))
	assert.ErrorIs(t, err, ErrNotPathRequest)

	var ipe *uri.InvalidParametersError

	_, err = ToSubdomainRequest(mustURL(t, "http://example.com/ipfs/notacid/foo"))
	assert.True(t, errors.As(err, &ipe))

	_, err = ToSubdomainRequest(mustURL(t, "http://example.com/ipns/nodots/foo"))
	assert.True(t, errors.As(err, &ipe))

	// unknown namespaces are rejected rather than turned into a subdomain
	_, err = ToSubdomainRequest(mustURL(t, "http://example.com/potato/QmWhatever/foo"))
	assert.True(t, errors.As(err, &ipe))
}

func TestFindOriginIsolationRedirect(t *testing.T) {
	sub := mustURL(t, "http://"+cidV1+".ipfs.example.com/foo")
	for _, s := range []Support{SupportUnknown, SupportTrue, SupportFalse} {
		out, err := FindOriginIsolationRedirect(sub, s)
		require.NoError(t, err)
		assert.Nil(t, out, s.String())
	}

	path := mustURL(t, "http://example.com/ipfs/"+cidV1+"/foo")
	out, err := FindOriginIsolationRedirect(path, SupportTrue)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.NotEqual(t, path.Host, out.Host)
	assert.Equal(t, "/foo", out.Query().Get(RedirectParam))

	for _, s := range []Support{SupportUnknown, SupportFalse} {
		out, err := FindOriginIsolationRedirect(path, s)
		require.NoError(t, err)
		assert.Nil(t, out, s.String())
	}

	out, err = FindOriginIsolationRedirect(mustURL(t, "http://example.com/ipfs-sw-config"), SupportTrue)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestSupportOf(t *testing.T) {
	yes, no := true, false
	assert.Equal(t, SupportUnknown, SupportOf(nil))
	assert.Equal(t, SupportTrue, SupportOf(&yes))
	assert.Equal(t, SupportFalse, SupportOf(&no))
}

func TestRequestShape(t *testing.T) {
	assert.True(t, IsSubdomainGatewayRequest(mustURL(t, "http://"+cidV1+".ipfs.localhost:3000/")))
	assert.True(t, IsSubdomainGatewayRequest(mustURL(t, "http://docs-ipfs-tech.ipns.localhost/")))
	assert.False(t, IsSubdomainGatewayRequest(mustURL(t, "http://localhost:3000/ipfs/"+cidV1)))
	assert.False(t, IsSubdomainGatewayRequest(mustURL(t, "http://foo.bar.example.com/")))

	assert.True(t, IsPathGatewayRequest(mustURL(t, "http://localhost:3000/ipfs/"+cidV1)))
	assert.True(t, IsPathGatewayRequest(mustURL(t, "http://localhost:3000/ipns/docs.ipfs.tech/x")))
	assert.False(t, IsPathGatewayRequest(mustURL(t, "http://localhost:3000/ipfs/")))
	assert.False(t, IsPathGatewayRequest(mustURL(t, "http://localhost:3000/ipfs-sw-config")))
}

func TestPartsOf(t *testing.T) {
	p := PartsOf(mustURL(t, "http://docs-ipfs-tech.ipns.localhost:3000/"))
	assert.Equal(t, Parts{ID: "docs.ipfs.tech", Protocol: "ipns", ParentDomain: "localhost:3000"}, p)

	p = PartsOf(mustURL(t, "http://docs.ipfs.tech.ipns.foo.localhost/"))
	assert.Equal(t, Parts{ID: "docs.ipfs.tech", Protocol: "ipns", ParentDomain: "foo.localhost"}, p)

	p = PartsOf(mustURL(t, "http://"+cidV1+".ipfs.example.com/"))
	assert.Equal(t, Parts{ID: cidV1, Protocol: "ipfs", ParentDomain: "example.com"}, p)

	p = PartsOf(mustURL(t, "http://example.com/ipfs/"+cidV1))
	assert.Equal(t, Parts{ParentDomain: "example.com"}, p)
}

func TestUpdateRedirect(t *testing.T) {
	tests := []struct {
		resource string
		location string
		want     string
	}{
		{
			resource: "http://localhost:3000/ipfs/" + cidV1 + "/",
			location: "ipfs://" + cidV1 + "/dir/?a=b#c",
			want:     "http://localhost:3000/ipfs/" + cidV1 + "/dir/?a=b#c",
		},
		{
			resource: "http://" + cidV1 + ".ipfs.localhost:3000/",
			location: "ipns://docs.ipfs.tech/install/",
			want:     "http://docs-ipfs-tech.ipns.localhost:3000/install/",
		},
		{
			resource: "http://" + cidV1 + ".ipfs.localhost:3000/",
			location: "https://example.org/elsewhere",
			want:     "https://example.org/elsewhere",
		},
		{
			resource: "http://" + cidV1 + ".ipfs.localhost:3000/dir",
			location: "/dir/",
			want:     "/dir/",
		},
	}
	for _, tt := range tests {
		h := http.Header{}
		h.Set("Location", tt.location)
		UpdateRedirect(mustURL(t, tt.resource), h)
		assert.Equal(t, tt.want, h.Get("Location"), tt.location)
	}

	h := http.Header{}
	UpdateRedirect(mustURL(t, "http://localhost:3000/"), h)
	assert.Empty(t, h.Get("Location"))
}
