/*
 *
 *  * Licensed to the Apache Software Foundation (ASF) under one or more
 *  * contributor license agreements.  See the NOTICE file distributed with
 *  * this work for additional information regarding copyright ownership.
 *  * The ASF licenses this file to You under the Apache License, Version 2.0
 *  * (the "License"); you may not use this file except in compliance with
 *  * the License.  You may obtain a copy of the License at
 *  *
 *  *     http://www.apache.org/licenses/LICENSE-2.0
 *  *
 *  * Unless required by applicable law or agreed to in writing, software
 *  * distributed under the License is distributed on an "AS IS" BASIS,
 *  * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *  * See the License for the specific language governing permissions and
 *  * limitations under the License.
 *
 */

package config

import (
	"errors"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/configdb"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	ErrConfigNotInit       = errors.New("config not init")
	ErrDuplicateInitConfig = errors.New("duplicate init config")
)

// EnvPrefix prefixes environment variables overriding the file, e.g.
// SWGW_SERVER_ADDR for server.addr.
const EnvPrefix = "SWGW"

const (
	FetcherGateway = "gateway"
	FetcherKubo    = "kubo"
)

type Config struct {
	Server   ServerC   `mapstructure:"server"`
	Debug    DebugC    `mapstructure:"debug"`
	Admin    AdminC    `mapstructure:"admin"`
	Storage  StorageC  `mapstructure:"storage"`
	Fetcher  FetcherC  `mapstructure:"fetcher"`
	Assets   AssetsC   `mapstructure:"assets"`
	Defaults DefaultsC `mapstructure:"defaults"`
}

type ServerC struct {
	Addr string `mapstructure:"addr"`
	// Root is the origin the gateway is installed on, e.g.
	// http://localhost:8080. Subdomain requests are <id>.ipfs.<root host>.
	Root            string        `mapstructure:"root"`
	ProbeSubdomains bool          `mapstructure:"probeSubdomains"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// DebugC serves pprof and prometheus metrics.
type DebugC struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
}

type AdminC struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
}

type RedisC struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type OSSC struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	PathStyle bool   `mapstructure:"pathStyle"`
}

type StorageC struct {
	ConfigBackend string `mapstructure:"configBackend"`
	CacheBackend  string `mapstructure:"cacheBackend"`
	DataDir       string `mapstructure:"dataDir"`
	// unit: MB
	HotCacheSize int64  `mapstructure:"hotCacheSize"`
	Redis        RedisC `mapstructure:"redis"`
	OSS          OSSC   `mapstructure:"oss"`
}

type FetcherC struct {
	Kind         string `mapstructure:"kind"`
	KuboEndpoint string `mapstructure:"kuboEndpoint"`
	// upper bound of a single upstream HTTP request, 0 for none
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
}

type AssetsC struct {
	Dir string `mapstructure:"dir"`
}

// DefaultsC is the gateway configuration used until the config store holds
// something else.
type DefaultsC struct {
	Gateways []string `mapstructure:"gateways"`
	Routers  []string `mapstructure:"routers"`
	// "<domain suffix> <resolver url>" pairs, e.g.
	// ". https://delegated-ipfs.dev/dns-query"
	DNSJSONResolvers             []string      `mapstructure:"dnsJsonResolvers"`
	FetchTimeout                 time.Duration `mapstructure:"fetchTimeout"`
	AcceptOriginIsolationWarning bool          `mapstructure:"acceptOriginIsolationWarning"`
	SupportDirectoryIndexes      bool          `mapstructure:"supportDirectoryIndexes"`
	SupportWebRedirects          bool          `mapstructure:"supportWebRedirects"`
}

// Global configuration
var _config *Config

// SetDefaults registers the default of every key with viper, which also
// makes every key overridable from the environment.
func SetDefaults() {
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.root", "http://localhost:8080")
	viper.SetDefault("server.probeSubdomains", false)
	viper.SetDefault("server.shutdownTimeout", 5*time.Second)
	viper.SetDefault("debug.enable", false)
	viper.SetDefault("debug.addr", ":26063")
	viper.SetDefault("admin.enable", false)
	viper.SetDefault("admin.addr", "127.0.0.1:26064")
	viper.SetDefault("storage.configBackend", "hybriddb")
	viper.SetDefault("storage.cacheBackend", "hybriddb")
	viper.SetDefault("storage.dataDir", "data")
	viper.SetDefault("storage.hotCacheSize", 256)
	viper.SetDefault("storage.redis.addr", "")
	viper.SetDefault("storage.redis.password", "")
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.oss.endpoint", "")
	viper.SetDefault("storage.oss.bucket", "")
	viper.SetDefault("storage.oss.region", "")
	viper.SetDefault("storage.oss.accessKey", "")
	viper.SetDefault("storage.oss.secretKey", "")
	viper.SetDefault("storage.oss.pathStyle", false)
	viper.SetDefault("fetcher.kind", FetcherGateway)
	viper.SetDefault("fetcher.kuboEndpoint", "http://localhost:5001")
	viper.SetDefault("fetcher.requestTimeout", time.Duration(0))
	viper.SetDefault("assets.dir", "")

	d := configdb.Defaults()
	viper.SetDefault("defaults.gateways", d.Gateways)
	viper.SetDefault("defaults.routers", d.Routers)
	viper.SetDefault("defaults.dnsJsonResolvers", []string{})
	viper.SetDefault("defaults.fetchTimeout", d.FetchTimeout)
	viper.SetDefault("defaults.acceptOriginIsolationWarning", d.AcceptOriginIsolationWarning)
	viper.SetDefault("defaults.supportDirectoryIndexes", d.SupportDirectoryIndexes)
	viper.SetDefault("defaults.supportWebRedirects", d.SupportWebRedirects)

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// LoadEnv loads .env style files into the environment. Missing files are
// skipped; variables already set win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// InitConfig maps what viper has read onto the global configuration.
func InitConfig() error {
	if _config != nil {
		return ErrDuplicateInitConfig
	}
	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return err
	}
	c.Server.Root = strings.TrimSuffix(c.Server.Root, "/")
	if err := c.Validate(); err != nil {
		return err
	}
	_config = c
	return nil
}

func Get() *Config {
	return _config
}

// Reset forgets the global configuration.
func Reset() {
	_config = nil
}

func (c *Config) Validate() error {
	backends := make([]interface{}, 0)
	for _, name := range driver.ListStores() {
		backends = append(backends, name)
	}

	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Debug),
		validation.Field(&c.Admin),
		validation.Field(&c.Storage, validation.By(func(interface{}) error {
			return validation.ValidateStruct(&c.Storage,
				validation.Field(&c.Storage.ConfigBackend, validation.Required, validation.In(backends...)),
				validation.Field(&c.Storage.CacheBackend, validation.Required, validation.In(backends...)),
				validation.Field(&c.Storage.HotCacheSize, validation.Min(int64(0))),
			)
		})),
		validation.Field(&c.Fetcher),
		validation.Field(&c.Defaults, validation.By(func(interface{}) error {
			return validation.ValidateStruct(&c.Defaults,
				validation.Field(&c.Defaults.Gateways,
					validation.When(c.Fetcher.Kind == FetcherGateway, validation.Required),
					validation.Each(is.URL)),
				validation.Field(&c.Defaults.Routers, validation.Each(is.URL)),
				validation.Field(&c.Defaults.DNSJSONResolvers, validation.Each(validation.By(validateResolver))),
				validation.Field(&c.Defaults.FetchTimeout, validation.Required, validation.Min(time.Second)),
			)
		})),
	)
}

func (s ServerC) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
		validation.Field(&s.Root, validation.Required, validation.By(validateOrigin)),
	)
}

func (d DebugC) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Addr, validation.When(d.Enable, validation.Required)),
	)
}

func (a AdminC) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Addr, validation.When(a.Enable, validation.Required)),
	)
}

func (f FetcherC) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Kind, validation.Required, validation.In(FetcherGateway, FetcherKubo)),
		validation.Field(&f.KuboEndpoint, validation.When(f.Kind == FetcherKubo, validation.Required, is.URL)),
	)
}

func validateOrigin(value interface{}) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return validation.NewError("validation_origin_invalid", "must be a valid URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validation.NewError("validation_origin_invalid", "must be an http(s) origin")
	}
	if u.Path != "" && u.Path != "/" {
		return validation.NewError("validation_origin_invalid", "must not have a path")
	}
	return nil
}

func validateResolver(value interface{}) error {
	s, _ := value.(string)
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return validation.NewError("validation_resolver_invalid", "must be \"<domain> <url>\"")
	}
	return is.URL.Validate(fields[1])
}

// RootURL is the parsed server root.
func (c *Config) RootURL() *url.URL {
	u, _ := url.Parse(c.Server.Root)
	u.Path = ""
	return u
}

// DriverConfig is the backend configuration handed to the storage drivers.
func (c *Config) DriverConfig() *driver.Config {
	return &driver.Config{
		DataDir:      c.Storage.DataDir,
		HotCacheSize: c.Storage.HotCacheSize,
		Redis: driver.RedisConfig{
			Addr:     c.Storage.Redis.Addr,
			Password: c.Storage.Redis.Password,
			DB:       c.Storage.Redis.DB,
		},
		OSS: driver.OSSConfig{
			Endpoint:  c.Storage.OSS.Endpoint,
			Bucket:    c.Storage.OSS.Bucket,
			Region:    c.Storage.OSS.Region,
			AccessKey: c.Storage.OSS.AccessKey,
			SecretKey: c.Storage.OSS.SecretKey,
			PathStyle: c.Storage.OSS.PathStyle,
		},
	}
}

// GatewayDefaults is the gateway configuration used for keys the config
// store does not hold.
func (c *Config) GatewayDefaults() configdb.GatewayConfig {
	d := configdb.Defaults()
	if len(c.Defaults.Gateways) > 0 {
		d.Gateways = c.Defaults.Gateways
	}
	d.Routers = c.Defaults.Routers
	if len(c.Defaults.DNSJSONResolvers) > 0 {
		d.DNSJSONResolvers = make(map[string]string, len(c.Defaults.DNSJSONResolvers))
		for _, r := range c.Defaults.DNSJSONResolvers {
			if f := strings.Fields(r); len(f) == 2 {
				d.DNSJSONResolvers[f[0]] = f[1]
			}
		}
	}
	if c.Defaults.FetchTimeout > 0 {
		d.FetchTimeout = c.Defaults.FetchTimeout
	}
	d.AcceptOriginIsolationWarning = c.Defaults.AcceptOriginIsolationWarning
	d.SupportDirectoryIndexes = c.Defaults.SupportDirectoryIndexes
	d.SupportWebRedirects = c.Defaults.SupportWebRedirects
	return d
}
