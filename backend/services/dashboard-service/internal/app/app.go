package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"parkpay/backend/libs/ledger"
	libredis "parkpay/backend/libs/redis"
	"parkpay/backend/libs/stats"
	"parkpay/backend/libs/txlog"
	"parkpay/backend/services/dashboard-service/internal/config"
	httpserver "parkpay/backend/services/dashboard-service/internal/http"
	"parkpay/backend/services/dashboard-service/internal/http/handlers"
	"parkpay/backend/services/dashboard-service/internal/http/middleware"
	"parkpay/backend/services/dashboard-service/internal/models"
	"parkpay/backend/services/dashboard-service/internal/redis"
	"parkpay/backend/services/dashboard-service/internal/watcher"
	"parkpay/backend/services/dashboard-service/internal/ws"
)

// App wires dashboard service dependencies.
type App struct {
	server     *httpserver.Server
	watcher    *watcher.Watcher
	hub        *ws.Hub
	aggregator *stats.Aggregator
	sources    []watcher.ChangeSource
	redis      *goredis.Client
	logger     *zap.Logger
}

// New constructs application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := ledger.Open(cfg.Files.Ledger)
	if err != nil {
		return nil, err
	}
	txLog, err := txlog.Open(cfg.Files.Transactions)
	if err != nil {
		return nil, err
	}
	aggregator := stats.NewAggregator(store, txLog)

	hub := ws.NewHub(snapshotFunc(aggregator), cfg.WriteTimeout(), cfg.PingInterval(), logger,
		ws.WithAllowedOrigins(cfg.WebSocket.AllowedOrigins...))
	sinks := watcher.MultiSink{hub}

	a := &App{hub: hub, aggregator: aggregator, logger: logger}

	if cfg.Redis.Addr != "" {
		client, err := libredis.NewClient(ctx, libredis.Options{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			ClientName: "parkpay-dashboard",
		})
		if err != nil {
			return nil, fmt.Errorf("app: connect redis: %w", err)
		}
		a.redis = client
		sinks = append(sinks, redis.NewPublisher(client, cfg.Redis.Channel, cfg.Redis.StatsKey, logger))
	}

	ledgerSource, txSource, err := newSources(cfg, store.Path(), txLog.Path())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sources = []watcher.ChangeSource{ledgerSource, txSource}

	a.watcher = watcher.New(watcher.Config{
		Ledger:       ledgerSource,
		Transactions: txSource,
		Stats:        aggregator,
		TxLog:        txLog,
		Sink:         sinks,
		Interval:     cfg.PollInterval(),
		Backoff:      cfg.Backoff(),
		Logger:       logger,
	})

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Observer:      handlers.NewObserverHandlers(store, txLog, aggregator, logger),
		Subscribe:     hub.HandleWS,
		HealthHandler: handlers.NewHealthHandler(),
	}, middleware.AuthMiddleware(cfg.Auth.JWTSecret))

	a.server = httpserver.NewServer(
		cfg.HTTPAddress(),
		router,
		logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)

	logger.Info("dashboard service configured",
		zap.String("ledger", store.Path()),
		zap.String("transactions", txLog.Path()),
		zap.String("watch_mode", cfg.Watcher.Mode),
		zap.Bool("redis", a.redis != nil),
		zap.Bool("auth", cfg.Auth.JWTSecret != ""),
	)
	return a, nil
}

func newSources(cfg *config.Config, ledgerPath, txPath string) (watcher.ChangeSource, watcher.ChangeSource, error) {
	if cfg.Watcher.Mode != config.WatchModeNotify {
		return watcher.NewSizeSource(models.SourceLedger, ledgerPath),
			watcher.NewSizeSource(models.SourceTransactions, txPath), nil
	}
	ledgerSource, err := watcher.NewNotifySource(models.SourceLedger, ledgerPath)
	if err != nil {
		return nil, nil, err
	}
	txSource, err := watcher.NewNotifySource(models.SourceTransactions, txPath)
	if err != nil {
		ledgerSource.Close()
		return nil, nil, err
	}
	return ledgerSource, txSource, nil
}

func snapshotFunc(aggregator *stats.Aggregator) ws.SnapshotFunc {
	return func(ctx context.Context) (models.Event, error) {
		current, err := aggregator.Recompute(ctx)
		if err != nil {
			return models.Event{}, err
		}
		return models.Event{
			Type:      models.EventSnapshot,
			Timestamp: time.Now().UTC(),
			Stats:     current,
		}, nil
	}
}

// Run starts the watcher and serves HTTP until ctx is done or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		_ = a.watcher.Run(ctx)
	}()

	err := a.server.Run(ctx)
	cancel()
	a.hub.Close()
	<-watchDone
	return err
}

// Close releases resources.
func (a *App) Close() {
	a.hub.Close()
	for _, source := range a.sources {
		if err := source.Close(); err != nil {
			a.logger.Warn("failed to close change source", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
