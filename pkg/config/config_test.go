package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/IceFireDB/IceFireDB-SWGateway/driver/datastore"
	_ "github.com/IceFireDB/IceFireDB-SWGateway/driver/hybriddb"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	viper.Reset()
	Reset()
	t.Cleanup(func() {
		viper.Reset()
		Reset()
	})

	SetDefaults()
	if yaml != "" {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
		viper.SetConfigFile(path)
		require.NoError(t, viper.ReadInConfig())
	}
	if err := InitConfig(); err != nil {
		return nil, err
	}
	return Get(), nil
}

func TestDefaults(t *testing.T) {
	c, err := load(t, "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "http://localhost:8080", c.Server.Root)
	assert.Equal(t, 5*time.Second, c.Server.ShutdownTimeout)
	assert.Equal(t, "hybriddb", c.Storage.ConfigBackend)
	assert.Equal(t, "hybriddb", c.Storage.CacheBackend)
	assert.EqualValues(t, 256, c.Storage.HotCacheSize)
	assert.Equal(t, FetcherGateway, c.Fetcher.Kind)

	d := c.GatewayDefaults()
	assert.Equal(t, []string{"https://trustless-gateway.link"}, d.Gateways)
	assert.Equal(t, 30*time.Second, d.FetchTimeout)
	assert.Equal(t, "https://delegated-ipfs.dev/dns-query", d.DNSJSONResolvers["."])
	assert.True(t, d.SupportDirectoryIndexes)
	assert.True(t, d.SupportWebRedirects)

	assert.Equal(t, "localhost:8080", c.RootURL().Host)
}

func TestFile(t *testing.T) {
	c, err := load(t, `
server:
  addr: ":9090"
  root: "https://gw.example.com/"
storage:
  configBackend: datastore
  cacheBackend: hybriddb
  dataDir: /var/lib/swgw
  redis:
    addr: "127.0.0.1:6379"
    db: 2
fetcher:
  kind: kubo
  kuboEndpoint: "http://127.0.0.1:5001"
defaults:
  gateways: ["https://a.example", "https://b.example"]
  dnsJsonResolvers:
    - ". https://dns.example/dns-query"
    - "eth. https://eth.example/dns-query"
  fetchTimeout: 10s
  acceptOriginIsolationWarning: true
  supportWebRedirects: false
`)
	require.NoError(t, err)

	assert.Equal(t, ":9090", c.Server.Addr)
	assert.Equal(t, "https://gw.example.com", c.Server.Root)
	assert.Equal(t, "datastore", c.Storage.ConfigBackend)
	assert.Equal(t, FetcherKubo, c.Fetcher.Kind)

	dc := c.DriverConfig()
	assert.Equal(t, "/var/lib/swgw", dc.DataDir)
	assert.Equal(t, "127.0.0.1:6379", dc.Redis.Addr)
	assert.Equal(t, 2, dc.Redis.DB)

	d := c.GatewayDefaults()
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, d.Gateways)
	assert.Equal(t, map[string]string{".": "https://dns.example/dns-query", "eth.": "https://eth.example/dns-query"}, d.DNSJSONResolvers)
	assert.Equal(t, 10*time.Second, d.FetchTimeout)
	assert.True(t, d.AcceptOriginIsolationWarning)
	assert.True(t, d.SupportDirectoryIndexes)
	assert.False(t, d.SupportWebRedirects)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SWGW_SERVER_ADDR", ":7070")
	c, err := load(t, "server:\n  addr: \":9090\"\n")
	require.NoError(t, err)
	assert.Equal(t, ":7070", c.Server.Addr)
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"unknown backend":    "storage:\n  cacheBackend: nope\n",
		"root without http":  "server:\n  root: \"ftp://example.com\"\n",
		"root with path":     "server:\n  root: \"http://example.com/app\"\n",
		"unknown fetcher":    "fetcher:\n  kind: bitswap\n",
		"kubo needs url":     "fetcher:\n  kind: kubo\n  kuboEndpoint: \"\"\n",
		"bad gateway":        "defaults:\n  gateways: [\"not a url\"]\n",
		"short timeout":      "defaults:\n  fetchTimeout: 10ms\n",
		"bad resolver":       "defaults:\n  dnsJsonResolvers: [\"https://dns.example\"]\n",
		"debug needs addr":   "debug:\n  enable: true\n  addr: \"\"\n",
		"negative hot cache": "storage:\n  hotCacheSize: -1\n",
	}
	for name, yaml := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load(t, yaml)
			assert.Error(t, err)
			assert.Nil(t, Get())
		})
	}
}

func TestInitConfigTwice(t *testing.T) {
	_, err := load(t, "")
	require.NoError(t, err)
	assert.ErrorIs(t, InitConfig(), ErrDuplicateInitConfig)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SWGW_TEST_LOADENV=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SWGW_TEST_LOADENV") })

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("SWGW_TEST_LOADENV"))
}
