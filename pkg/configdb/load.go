package configdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// GatewayConfig is the configuration snapshot a request is served with.
type GatewayConfig struct {
	Gateways                     []string          `json:"gateways"`
	Routers                      []string          `json:"routers"`
	DNSJSONResolvers             map[string]string `json:"dnsJsonResolvers"`
	DelegatedRouting             bool              `json:"delegatedRouting"`
	AutoReload                   bool              `json:"autoReload"`
	Debug                        string            `json:"debug"`
	FetchTimeout                 time.Duration     `json:"fetchTimeout"`
	AcceptOriginIsolationWarning bool              `json:"acceptOriginIsolationWarning"`
	SupportDirectoryIndexes      bool              `json:"supportDirectoryIndexes"`
	SupportWebRedirects          bool              `json:"supportWebRedirects"`
}

// Defaults returns the configuration used for anything the store does not
// hold.
func Defaults() GatewayConfig {
	return GatewayConfig{
		Gateways:         []string{"https://trustless-gateway.link"},
		Routers:          []string{"https://delegated-ipfs.dev"},
		DNSJSONResolvers: map[string]string{".": "https://delegated-ipfs.dev/dns-query"},
		DelegatedRouting: true,
		FetchTimeout:     30 * time.Second,

		SupportDirectoryIndexes: true,
		SupportWebRedirects:     true,
	}
}

// Load reads the configuration from s. Keys that are missing or cannot be
// read fall back to defaults. The error is the first read failure other than
// a missing key or an unopened store; the configuration is usable either
// way but should not be kept.
func Load(ctx context.Context, s *Store, defaults GatewayConfig) (GatewayConfig, error) {
	out := defaults
	var firstErr error

	read := func(key string) (interface{}, bool) {
		v, err := s.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, driver.ErrNotFound) && !errors.Is(err, ErrNotOpen) {
				logrus.Debugf("configdb: error loading %s: %v", key, err)
				if firstErr == nil {
					firstErr = fmt.Errorf("load %s: %w", key, err)
				}
			}
			return nil, false
		}
		return v, v != nil
	}

	if v, ok := read(KeyGateways); ok {
		if gateways, err := cast.ToStringSliceE(v); err == nil && len(gateways) > 0 {
			out.Gateways = gateways
		}
	}
	if v, ok := read(KeyRouters); ok {
		if routers, err := cast.ToStringSliceE(v); err == nil {
			out.Routers = routers
		}
	}
	if v, ok := read(KeyDNSJSONResolvers); ok {
		if resolvers, err := cast.ToStringMapStringE(v); err == nil && len(resolvers) > 0 {
			out.DNSJSONResolvers = resolvers
		}
	}
	if v, ok := read(KeyDelegatedRouting); ok {
		if b, err := cast.ToBoolE(v); err == nil {
			out.DelegatedRouting = b
		}
	}
	if v, ok := read(KeyAutoReload); ok {
		if b, err := cast.ToBoolE(v); err == nil {
			out.AutoReload = b
		}
	}
	if v, ok := read(KeyDebug); ok {
		out.Debug = cast.ToString(v)
	}
	if v, ok := read(KeyFetchTimeout); ok {
		if d, err := toDuration(v); err == nil && d > 0 {
			out.FetchTimeout = d
		}
	}
	if v, ok := read(KeyAcceptOriginIsolationWarning); ok {
		if b, err := cast.ToBoolE(v); err == nil {
			out.AcceptOriginIsolationWarning = b
		}
	}

	if v, ok := read(KeySupportDirectoryIndexes); ok {
		if b, err := cast.ToBoolE(v); err == nil {
			out.SupportDirectoryIndexes = b
		}
	}
	if v, ok := read(KeySupportWebRedirects); ok {
		if b, err := cast.ToBoolE(v); err == nil {
			out.SupportWebRedirects = b
		}
	}

	if out.FetchTimeout <= 0 {
		out.FetchTimeout = Defaults().FetchTimeout
	}
	return out, firstErr
}

// toDuration reads numbers as milliseconds and strings as Go durations.
func toDuration(v interface{}) (time.Duration, error) {
	switch v.(type) {
	case string:
		return cast.ToDurationE(v)
	default:
		ms, err := cast.ToInt64E(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
}
