package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	_ "github.com/IceFireDB/IceFireDB-SWGateway/driver/badger"
	_ "github.com/IceFireDB/IceFireDB-SWGateway/driver/buntdb_memory"
	_ "github.com/IceFireDB/IceFireDB-SWGateway/driver/datastore"
	_ "github.com/IceFireDB/IceFireDB-SWGateway/driver/hybriddb"
	_ "github.com/IceFireDB/IceFireDB-SWGateway/driver/oss"
	_ "github.com/IceFireDB/IceFireDB-SWGateway/driver/redis"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/admin"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/cachestorage"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/config"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/configdb"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/fetcher"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/gateway"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/logs"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/monitor"
	"github.com/IceFireDB/IceFireDB-SWGateway/utils"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli"
)

const appName = "IceFireDB-SWGateway"

// BuildDate: Binary file compilation time
// BuildVersion: Binary compiled GIT version
// BuildRevision: Binary compiled GIT revision
var (
	BuildDate     string
	BuildVersion  = "dev"
	BuildRevision string
)

var logHub = logs.NewHub()

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Version = BuildVersion
	app.Description = "IPFS and IPNS gateway verifying content on the gateway host, with per-root origin isolation."
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config,c",
			Usage: "config file",
			Value: "config/config.yaml",
		},
		cli.StringFlag{
			Name:  "env,e",
			Usage: "dotenv file loaded before the config",
			Value: ".env",
		},
		cli.StringFlag{
			Name:  "log-level,l",
			Usage: "log level (trace, debug, info, warn, error)",
			Value: "info",
		},
	}
	app.Before = initConfig
	app.Action = start
	if err := app.Run(os.Args); err != nil {
		logrus.Errorf("failed to run application: %v", err)
		os.Exit(1)
	}
}

func initConfig(c *cli.Context) error {
	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.AddHook(logHub)

	if err := config.LoadEnv(c.String("env")); err != nil {
		return err
	}

	config.SetDefaults()
	if file := c.String("config"); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return err
			}
			logrus.Warnf("config file %s not found, using defaults", file)
		}
	}
	return config.InitConfig()
}

func newFetcher(cfg *config.Config) gateway.NewFetcherFunc {
	client := &http.Client{Timeout: cfg.Fetcher.RequestTimeout}
	return func(gc configdb.GatewayConfig) fetcher.Fetcher {
		switch cfg.Fetcher.Kind {
		case config.FetcherKubo:
			return fetcher.NewKubo(cfg.Fetcher.KuboEndpoint)
		default:
			return fetcher.NewTrustlessGateway(gc.Gateways, client)
		}
	}
}

func start(c *cli.Context) error {
	cfg := config.Get()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cacheDB, err := driver.Open(cfg.Storage.CacheBackend, "caches", cfg.DriverConfig())
	if err != nil {
		return fmt.Errorf("open cache storage: %w", err)
	}
	caches := cachestorage.New(cacheDB)
	defer caches.Close()

	store := configdb.New(cfg.Storage.ConfigBackend, "config", cfg.DriverConfig())
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var files http.Handler
	if cfg.Assets.Dir != "" {
		files = http.FileServer(http.Dir(cfg.Assets.Dir))
	}

	gw := gateway.New(gateway.Options{
		Root:    cfg.RootURL(),
		Files:   files,
		State:   gateway.NewState(store, cfg.GatewayDefaults(), cfg.Server.Root, newFetcher(cfg)),
		Caches:  caches,
		Logs:    logHub,
		Metrics: monitor.New(reg),
		Build:   gateway.Build{Name: appName, Version: BuildVersion, Revision: BuildRevision},
	})
	if err := gw.Register(ctx); err != nil {
		return err
	}
	logrus.Infof("%s %s built %s", appName, BuildVersion, BuildDate)

	errSignal := make(chan error, 3)
	serve := func(name string, srv *http.Server) {
		utils.GoWithRecover(func() {
			logrus.Infof("%s listening on %s", name, srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errSignal <- fmt.Errorf("%s: %w", name, err)
			}
		}, nil)
	}

	servers := []*http.Server{{Addr: cfg.Server.Addr, Handler: gw}}
	serve("gateway", servers[0])

	if cfg.Debug.Enable {
		// pprof registers itself on the default mux
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Debug.Addr}
		servers = append(servers, srv)
		serve("debug", srv)
	}
	if cfg.Admin.Enable {
		gin.SetMode(gin.ReleaseMode)
		a := &admin.Server{Gateway: gw, Gatherer: reg}
		srv := &http.Server{Addr: cfg.Admin.Addr, Handler: a.Router()}
		servers = append(servers, srv)
		serve("admin", srv)
	}

	if cfg.Server.ProbeSubdomains {
		utils.GoWithRecover(func() {
			// give the listener a moment
			time.Sleep(time.Second)
			if _, err := gw.ProbeSubdomains(ctx, &http.Client{Timeout: 10 * time.Second}); err != nil {
				logrus.Warnf("subdomain probe: %v", err)
			}
		}, nil)
	}

	// Listening to the offline
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	for {
		select {
		case err := <-errSignal:
			shutdown(gw, servers, cfg.Server.ShutdownTimeout)
			return err
		case sig := <-sigs:
			switch sig {
			case syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT:
				logrus.Info("Received shutdown signal, initiating graceful shutdown...")
				cancel()
				shutdown(gw, servers, cfg.Server.ShutdownTimeout)
				return nil
			case syscall.SIGHUP:
				logrus.Info("Received SIGHUP signal, reloading gateway configuration.")
				gw.State.Reset()
			}
		}
	}
}

func shutdown(gw *gateway.Gateway, servers []*http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logrus.Warnf("shutdown %s: %v", srv.Addr, err)
		}
	}
	if err := gw.Shutdown(ctx); err != nil {
		logrus.Warn("Context deadline exceeded, background cache writes dropped.")
		return
	}
	logrus.Info("All goroutines have gracefully shut down.")
}
