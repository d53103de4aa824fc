// Package driver is the registry of key/value backends used for the config
// store and for cache storage buckets.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by IDB.Get when the key is absent.
var ErrNotFound = errors.New("driver: key not found")

// IDB is a namespaced key/value database.
type IDB interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists the keys starting with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Store opens named databases of one backend kind.
type Store interface {
	String() string
	Open(name string, cfg *Config) (IDB, error)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type OSSConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	PathStyle bool   `yaml:"pathStyle"`
}

// Config carries the settings of every backend; each one reads its own part.
type Config struct {
	DataDir string `yaml:"dataDir"`
	// unit: MB
	HotCacheSize int64       `yaml:"hotCacheSize"`
	Redis        RedisConfig `yaml:"redis"`
	OSS          OSSConfig   `yaml:"oss"`
}

var (
	mu     sync.RWMutex
	stores = make(map[string]Store)
)

// Register makes a backend available by name. It panics if the name is
// registered twice.
func Register(s Store) {
	mu.Lock()
	defer mu.Unlock()
	name := s.String()
	if _, ok := stores[name]; ok {
		panic(fmt.Errorf("driver: store %s is registered", name))
	}
	stores[name] = s
}

// ListStores returns the registered backend names.
func ListStores() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(stores))
	for k := range stores {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GetStore looks up a registered backend.
func GetStore(name string) (Store, error) {
	mu.RLock()
	defer mu.RUnlock()
	if s, ok := stores[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("driver: store %s is not registered", name)
}

// Open opens the database name on the backend kind.
func Open(kind, name string, cfg *Config) (IDB, error) {
	s, err := GetStore(kind)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &Config{}
	}
	return s.Open(name, cfg)
}
