package uri

import (
	"errors"
	"net/url"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cidV0      = "QmbQDovX7wRe9ek7u6QXe9zgCXkTzoUSsTFJEkrYV1HrVR"
	cidV1      = "bafybeigccimv3zqm5g4jt363faybagywkvqbrismoquogimy7kvz2sj7sq"
	ipnsKey    = "k51qzi5uqu5dh9ihj4p2v5sl3hxvv27ryx2w0xrsv6jmmqi91t9xp8p9kaipc2"
	ipnsLegacy = "12D3KooWCjhz69LskTZEC5vFWs8eDpHo7kYbGzrC5EjU75BHSmVK"
)

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

func parse(t *testing.T, s, root string) Resolvable {
	t.Helper()
	res, err := Parse(mustURL(t, s), mustURL(t, root))
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestParse_CanonicalizationIsDeterministic(t *testing.T) {
	root := "http://localhost:3000"

	sub := parse(t, "http://bafyaaaa.ipfs.example.com", root)
	path := parse(t, "http://localhost:3000/ipfs/bafyaaaa", root)

	for _, res := range []Resolvable{sub, path} {
		ipfs, ok := res.(*IPFS)
		require.True(t, ok, "%T", res)
		assert.Equal(t, "bafyaaaa.ipfs.localhost:3000", ipfs.SubdomainURL.Host)
		assert.Equal(t, "/", ipfs.SubdomainURL.Path)
		assert.Equal(t, "localhost:3000", ipfs.PathURL.Host)
		assert.Equal(t, "/ipfs/bafyaaaa/", ipfs.PathURL.Path)
	}

	assert.Equal(t, TypeSubdomain, sub.Kind())
	assert.Equal(t, TypePath, path.Kind())
	assert.Equal(t, "http://localhost:3000/ipfs/bafyaaaa/", path.(*IPFS).PathURL.String())
	assert.Equal(t, "http://bafyaaaa.ipfs.localhost:3000/", path.(*IPFS).SubdomainURL.String())
}

func TestParse_CIDv0IsNormalizedToBase32(t *testing.T) {
	res := parse(t, "http://localhost:3000/ipfs/"+cidV0+"/foo.txt?x=1#top", "http://localhost:3000")
	ipfs := res.(*IPFS)

	assert.Equal(t, "http://"+cidV1+".ipfs.localhost:3000/foo.txt?x=1#top", ipfs.SubdomainURL.String())
	assert.Equal(t, "http://localhost:3000/ipfs/"+cidV0+"/foo.txt?x=1#top", ipfs.PathURL.String())
	assert.Equal(t, "ipfs://"+cidV0+"/foo.txt?x=1#top", ipfs.NativeURL.String())
	assert.NotContains(t, ipfs.SubdomainURL.Host, cidV0)
	assert.Empty(t, ipfs.Gateways)
}

func TestParse_GatewayHints(t *testing.T) {
	res := parse(t, "http://bafyaaaa.ipfs.example.com/?gateway=http%3A%2F%2Fgw.test%2F", "http://localhost:3000")
	ipfs := res.(*IPFS)

	require.Len(t, ipfs.Gateways, 2)
	assert.Equal(t, "http://gw.test/", ipfs.Gateways[0].String())
	assert.Equal(t, "http://example.com/", ipfs.Gateways[1].String())
	assert.Equal(t, []string{"http://gw.test/", "http://example.com/"}, ipfs.SubdomainURL.Query()["gateway"])
}

func TestParse_GatewayHintsAreDeduplicated(t *testing.T) {
	res := parse(t, "http://bafyaaaa.ipfs.example.com/?gateway=http%3A%2F%2Fexample.com%2F&gateway=http%3A%2F%2Fexample.com%2F", "http://localhost:3000")
	assert.Len(t, res.(*IPFS).Gateways, 1)
}

func TestParse_IPNS(t *testing.T) {
	res := parse(t, "http://localhost:3000/ipns/"+ipnsLegacy+"/blog", "http://localhost:3000")
	ipns, ok := res.(*IPNS)
	require.True(t, ok, "%T", res)

	assert.Equal(t, ProtocolIPNS, ipns.Protocol())
	assert.Equal(t, "http://"+ipnsKey+".ipns.localhost:3000/blog", ipns.SubdomainURL.String())
	assert.Equal(t, "http://localhost:3000/ipns/"+ipnsLegacy+"/blog", ipns.PathURL.String())

	sub := parse(t, "http://"+ipnsKey+".ipns.localhost:3000/", "http://localhost:3000")
	assert.Equal(t, ipns.PeerID, sub.(*IPNS).PeerID)
}

func TestParse_DNSLink(t *testing.T) {
	res := parse(t, "http://specs-ipfs-tech.ipns.localhost:3000/a/b", "http://localhost:3000")
	dl, ok := res.(*DNSLink)
	require.True(t, ok, "%T", res)
	assert.Equal(t, "specs.ipfs.tech", dl.Domain)
	assert.Equal(t, "http://localhost:3000/ipns/specs.ipfs.tech/a/b", dl.PathURL.String())
	assert.Equal(t, "ipns://specs.ipfs.tech/a/b", dl.NativeURL.String())

	path := parse(t, "http://localhost:3000/ipns/en.wikipedia-on-ipfs.org/wiki/", "http://localhost:3000")
	assert.Equal(t, "http://en-wikipedia--on--ipfs-org.ipns.localhost:3000/wiki/", path.(*DNSLink).SubdomainURL.String())
}

func TestParse_Native(t *testing.T) {
	res := parse(t, "ipfs://"+cidV1+"/index.html", "http://localhost:3000")
	assert.Equal(t, TypeNative, res.Kind())
	assert.Equal(t, "http://"+cidV1+".ipfs.localhost:3000/index.html", res.(*IPFS).SubdomainURL.String())

	res, err := ParseString("/ipns/docs.ipfs.tech/install", mustURL(t, "http://localhost:3000"))
	require.NoError(t, err)
	assert.Equal(t, "docs.ipfs.tech", res.(*DNSLink).Domain)
	assert.Equal(t, TypeNative, res.Kind())
}

func TestParse_InvalidIdentifierOnRootIsFatal(t *testing.T) {
	root := mustURL(t, "http://localhost:3000")
	for _, s := range []string{
		"http://localhost:3000/ipfs/notacid",
		"http://invalid.ipfs.localhost:3000/",
	} {
		_, err := Parse(mustURL(t, s), root)
		require.Error(t, err, s)
		var ipe *InvalidParametersError
		assert.True(t, errors.As(err, &ipe), s)
	}
}

func TestParse_InvalidIdentifierOnForeignHostFallsThrough(t *testing.T) {
	root := "http://localhost:3000"
	assert.IsType(t, &External{}, parse(t, "http://example.com/ipfs/notacid", root))
	assert.IsType(t, &External{}, parse(t, "http://invalid.ipfs.example.com/", root))
}

func TestParse_InternalAndExternal(t *testing.T) {
	root := "http://localhost:3000"
	assert.IsType(t, &Internal{}, parse(t, "http://localhost:3000/ipfs-sw-config", root))
	assert.IsType(t, &External{}, parse(t, "https://example.org/x", root))
}

func TestParse_RootIsNormalized(t *testing.T) {
	res := parse(t, "http://localhost:3000/ipfs/"+cidV1, "http://bafyaaaa.ipfs.localhost:3000")
	assert.Equal(t, cidV1+".ipfs.localhost:3000", res.(*IPFS).SubdomainURL.Host)
	assert.Equal(t, "localhost:3000", NormalizeRoot(mustURL(t, "http://x-y.ipns.localhost:3000")).Host)
}

func TestParse_IPHostsAreNeverSubdomains(t *testing.T) {
	res := parse(t, "http://127.0.0.1:3000/ipfs/"+cidV1, "http://127.0.0.1:3000")
	assert.Equal(t, TypePath, res.Kind())
}

func TestParse_SubdomainURLIsIdempotent(t *testing.T) {
	root := "http://localhost:3000"
	inputs := []string{
		"http://localhost:3000/ipfs/" + cidV0 + "/a/b?x=y#frag",
		"http://bafyaaaa.ipfs.example.com/?gateway=http%3A%2F%2Fgw.test%2F",
		"ipfs://" + cidV1,
		"http://localhost:3000/ipns/" + ipnsLegacy,
		"http://localhost:3000/ipns/docs.ipfs.tech/",
		"http://en-wikipedia--on--ipfs-org.ipns.localhost:3000/wiki/Main",
	}
	for _, in := range inputs {
		first, ok := parse(t, in, root).(ContentURI)
		require.True(t, ok, in)

		again, ok := parse(t, first.Canonical().SubdomainURL.String(), root).(ContentURI)
		require.True(t, ok, in)

		assert.Equal(t, TypeSubdomain, again.Kind(), in)
		assert.Equal(t, first.Protocol(), again.Protocol(), in)
		assert.Equal(t, first.Canonical().SubdomainURL.String(), again.Canonical().SubdomainURL.String(), in)

		// a reparse names the same content, with CIDs lifted to v1
		want := first.Identifier()
		if ipfs, ok := first.(*IPFS); ok {
			want = cid.NewCidV1(ipfs.CID.Type(), ipfs.CID.Hash()).String()
		}
		assert.Equal(t, want, again.Identifier(), in)
	}
}

func TestParseCID_Multibases(t *testing.T) {
	for _, s := range []string{cidV0, cidV1, "bafkqaaa"} {
		_, err := ParseCID(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseCID("mAXASIA")
	assert.Error(t, err)
}
