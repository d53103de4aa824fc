// Package configdb reads the gateway configuration the UI writes into a
// key/value store. Values are JSON encoded, one key per setting.
package configdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/subdomain"
	"github.com/philippgille/gokv/encoding"
	"github.com/spf13/cast"
)

const (
	KeyGateways                     = "gateways"
	KeyRouters                      = "routers"
	KeyDNSJSONResolvers             = "dnsJsonResolvers"
	KeyDelegatedRouting             = "delegatedRouting"
	KeyAutoReload                   = "autoReload"
	KeyDebug                        = "debug"
	KeyFetchTimeout                 = "fetchTimeout"
	KeyAcceptOriginIsolationWarning = "acceptOriginIsolationWarning"
	KeySupportDirectoryIndexes      = "supportDirectoryIndexes"
	KeySupportWebRedirects          = "supportWebRedirects"
	KeyInstallTimestamp             = "installTimestamp"

	keySupportsSubdomainsPrefix = "supportsSubdomains:"
)

var ErrNotOpen = errors.New("configdb: database not opened")

// Store is a lazily opened key/value database of JSON values.
type Store struct {
	kind  string
	name  string
	cfg   *driver.Config
	codec encoding.Codec

	mu sync.Mutex
	db driver.IDB
}

// New returns a closed store of database name on the backend kind.
func New(kind, name string, cfg *driver.Config) *Store {
	return &Store{kind: kind, name: name, cfg: cfg, codec: encoding.JSON}
}

// Open opens the underlying database. Opening an open store is a no-op.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	db, err := driver.Open(s.kind, s.name, s.cfg)
	if err != nil {
		return fmt.Errorf("open config %s on %s: %w", s.name, s.kind, err)
	}
	s.db = db
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) handle() (driver.IDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotOpen
	}
	return s.db, nil
}

// Get decodes the value stored under key. It returns driver.ErrNotFound for
// a missing key.
func (s *Store) Get(ctx context.Context, key string) (interface{}, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	data, err := db.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := s.codec.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) Put(ctx context.Context, key string, value interface{}) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	data, err := s.codec.Marshal(value)
	if err != nil {
		return err
	}
	return db.Put(ctx, key, data)
}

// HasConfig reports whether the UI has written any gateway configuration.
func (s *Store) HasConfig(ctx context.Context) bool {
	_, err := s.Get(ctx, KeyGateways)
	return err == nil
}

// SubdomainSupport returns the recorded subdomain support of parentDomain.
func (s *Store) SubdomainSupport(ctx context.Context, parentDomain string) subdomain.Support {
	v, err := s.Get(ctx, keySupportsSubdomainsPrefix+parentDomain)
	if err != nil || v == nil {
		return subdomain.SupportUnknown
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return subdomain.SupportUnknown
	}
	return subdomain.SupportOf(&b)
}

func (s *Store) SetSubdomainSupport(ctx context.Context, parentDomain string, supported bool) error {
	return s.Put(ctx, keySupportsSubdomainsPrefix+parentDomain, supported)
}

// SetInstallTime records t as the time the gateway was installed.
func (s *Store) SetInstallTime(ctx context.Context, t time.Time) error {
	return s.Put(ctx, KeyInstallTimestamp, t.UnixMilli())
}

// InstallTime returns the recorded install time, or the zero time.
func (s *Store) InstallTime(ctx context.Context) time.Time {
	v, err := s.Get(ctx, KeyInstallTimestamp)
	if err != nil {
		return time.Time{}
	}
	ms, err := cast.ToInt64E(v)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
