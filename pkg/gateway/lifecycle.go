package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/cachestorage"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/handler"
	"github.com/sirupsen/logrus"
)

// Install records the install time and clears the asset cache so a new
// build never serves stale UI files.
func (g *Gateway) Install(ctx context.Context) error {
	if err := g.State.Init(ctx); err != nil {
		return err
	}
	if err := g.State.Store.SetInstallTime(ctx, time.Now()); err != nil {
		logrus.Errorf("install: record install time: %v", err)
	}
	// the snapshot carries the install time
	g.State.Reset()

	if g.Caches == nil {
		return nil
	}
	assets, err := g.Caches.Open(ctx, cachestorage.AssetsName)
	if err != nil {
		return fmt.Errorf("install: open %s: %w", cachestorage.AssetsName, err)
	}
	if err := assets.Clear(ctx); err != nil {
		logrus.Errorf("install: could not clear asset cache: %v", err)
	}
	return nil
}

// Activate deletes the buckets of older versions and starts handling
// requests.
func (g *Gateway) Activate(ctx context.Context) error {
	if g.Caches != nil {
		deleted, err := g.Caches.Prune(ctx, cachestorage.CurrentNames()...)
		if err != nil {
			logrus.Errorf("activate: could not delete out of date caches: %v", err)
		}
		for _, name := range deleted {
			logrus.Infof("activate: deleted out of date cache %s", name)
		}
	}
	g.registered.Store(true)
	logrus.Infof("Gateway active on %s. To unregister, append \"?%s=true\" to a URL.", g.Root, handler.UnregisterParam)
	return nil
}

// Unregister stops handling requests until the next Install and Activate.
func (g *Gateway) Unregister(context.Context) error {
	if !g.registered.CompareAndSwap(true, false) {
		return nil
	}
	g.State.Reset()
	logrus.Info("gateway unregistered")
	return nil
}

// Register runs Install then Activate.
func (g *Gateway) Register(ctx context.Context) error {
	if err := g.Install(ctx); err != nil {
		return err
	}
	return g.Activate(ctx)
}
