package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/configdb"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/content"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/fetcher"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/subdomain"
	"github.com/sirupsen/logrus"
)

// NewFetcherFunc builds the content fetcher for a configuration snapshot.
type NewFetcherFunc func(cfg configdb.GatewayConfig) fetcher.Fetcher

// State is the process wide gateway state: the configuration snapshot read
// from the config store and the fetcher built from it. Both are built on
// first use after Init or Reset.
type State struct {
	Store      *configdb.Store
	Defaults   configdb.GatewayConfig
	Origin     string
	NewFetcher NewFetcherFunc

	mu          sync.Mutex
	loaded      bool
	config      configdb.GatewayConfig
	installTime time.Time
	fetcher     fetcher.Fetcher
}

func NewState(store *configdb.Store, defaults configdb.GatewayConfig, origin string, newFetcher NewFetcherFunc) *State {
	return &State{Store: store, Defaults: defaults, Origin: origin, NewFetcher: newFetcher}
}

// Init opens the config store and loads the snapshot.
func (s *State) Init(ctx context.Context) error {
	if err := s.Store.Open(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	return nil
}

// Reset drops the snapshot and the fetcher; the next request rebuilds them.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.fetcher = nil
}

// loadLocked rebuilds the snapshot. A load that hit a store error serves the
// current request with defaults and is retried on the next one.
func (s *State) loadLocked(ctx context.Context) {
	// the snapshot outlives the request that triggered it
	ctx = context.WithoutCancel(ctx)
	cfg, err := configdb.Load(ctx, s.Store, s.Defaults)
	s.config = cfg
	s.installTime = s.Store.InstallTime(ctx)
	s.fetcher = nil
	if s.NewFetcher != nil {
		s.fetcher = s.NewFetcher(s.config)
	}
	if err != nil {
		s.loaded = false
		logrus.Warnf("gateway: config store read failed, using defaults until it recovers: %v", err)
		return
	}
	s.loaded = true
	logrus.Debugf("gateway: loaded config, gateways %v, fetch timeout %s", s.config.Gateways, s.config.FetchTimeout)
}

func (s *State) snapshot(ctx context.Context) (configdb.GatewayConfig, time.Time, fetcher.Fetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.loadLocked(ctx)
	}
	return s.config, s.installTime, s.fetcher
}

// Config returns the current configuration snapshot.
func (s *State) Config(ctx context.Context) configdb.GatewayConfig {
	cfg, _, _ := s.snapshot(ctx)
	return cfg
}

func (s *State) Settings(ctx context.Context) content.Settings {
	cfg, installed, _ := s.snapshot(ctx)
	return content.Settings{Config: cfg, InstallTime: installed, Origin: s.Origin}
}

func (s *State) SubdomainSupport(ctx context.Context, parentDomain string) subdomain.Support {
	return s.Store.SubdomainSupport(ctx, parentDomain)
}

var errNoFetcher = errors.New("gateway: no content fetcher configured")

// Fetch hands the request to the fetcher of the current snapshot.
func (s *State) Fetch(ctx context.Context, resource string, opts fetcher.Options) (*http.Response, error) {
	_, _, f := s.snapshot(ctx)
	if f == nil {
		return nil, errNoFetcher
	}
	return f.Fetch(ctx, resource, opts)
}
