package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/devblac/syt-bridge/internal/aggregate"
	"github.com/devblac/syt-bridge/internal/authz"
	"github.com/devblac/syt-bridge/internal/cache"
	"github.com/devblac/syt-bridge/internal/chain"
	"github.com/devblac/syt-bridge/internal/config"
	"github.com/devblac/syt-bridge/internal/logging"
	"github.com/devblac/syt-bridge/internal/metrics"
	"github.com/devblac/syt-bridge/internal/reconcile"
	"github.com/devblac/syt-bridge/internal/resolver"
	"github.com/devblac/syt-bridge/internal/sink"
	"github.com/devblac/syt-bridge/internal/storage"
	"github.com/ethereum/go-ethereum/common"
)

// app holds everything built from one config file.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *chain.Registry
	resolver *resolver.Resolver
	store    *storage.Store
	cache    cache.Cache
	notifier *reconcile.Notifier
	metrics  *metrics.Metrics
	svc      *reconcile.Service

	closers []func()
}

type appOptions struct {
	withMetrics bool
	withSinks   bool
}

func newLogger() *slog.Logger {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	return logging.NewWithLevel(level)
}

func buildApp(ctx context.Context, path string, opts appOptions) (*app, error) {
	log := newLogger()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	contract, err := chain.LoadContract(cfg.ABIPath)
	if err != nil {
		return nil, err
	}

	profiles := make([]chain.Profile, 0, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		cli, err := chain.NewRPCClient(ctx, ch.RPCURL, chain.RPCOptions{
			Timeout:           cfg.Global.Timeout(),
			RequestsPerSecond: ch.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", ch.ID, err)
		}
		a.closers = append(a.closers, cli.Close)
		profiles = append(profiles, chain.Profile{
			ChainID:        ch.ID,
			Name:           ch.Name,
			Contract:       common.HexToAddress(ch.Contract),
			NativeSymbol:   ch.NativeSymbol,
			NativeDecimals: ch.Decimals(),
			Client:         cli,
		})
	}
	a.registry, err = chain.NewRegistry(contract, profiles...)
	if err != nil {
		return nil, err
	}

	a.store, err = storage.Open(cfg.Global.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, func() { _ = a.store.Close() })

	switch cfg.Cache.Backend {
	case "redis":
		rc, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		a.cache = rc
	case "memory":
		a.cache = cache.NewMemory()
	}

	if opts.withMetrics {
		a.metrics = metrics.Init()
	}
	if opts.withSinks {
		senders, err := sink.Build(cfg.Sinks)
		if err != nil {
			return nil, err
		}
		a.notifier = reconcile.NewNotifier(senders, a.store, a.metrics, log)
		a.closers = append(a.closers, a.notifier.Wait)
	}

	retry := chain.RetryPolicy{Retries: cfg.Global.Retries(), Backoff: cfg.Global.Backoff()}
	a.resolver = resolver.New(a.registry, retry, log)
	a.svc, err = reconcile.New(reconcile.Deps{
		Registry: a.registry,
		Resolver: a.resolver,
		Aggregator: aggregate.New(a.registry, aggregate.Options{
			Cache:  a.cache,
			TTL:    cfg.Global.CacheTTL(),
			Retry:  retry,
			Logger: log,
		}),
		Authorizer: authz.New(a.registry, cfg.TypedData.Name, cfg.TypedData.Version, log),
		Store:      a.store,
		Notifier:   a.notifier,
		Metrics:    a.metrics,
		Logger:     log,
		Retry:      retry,
	})
	if err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
