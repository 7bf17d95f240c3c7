package app

import (
	"context"
	"database/sql"
	"io"
	"time"

	"go.uber.org/zap"

	"parkpay/backend/libs/ledger"
	"parkpay/backend/libs/txlog"
	"parkpay/backend/services/payment-service/internal/config"
	"parkpay/backend/services/payment-service/internal/db"
	"parkpay/backend/services/payment-service/internal/protocol"
	"parkpay/backend/services/payment-service/internal/repository"
	"parkpay/backend/services/payment-service/internal/serialport"
	"parkpay/backend/services/payment-service/internal/service"
)

// Dialer opens the controller channel.
type Dialer func() (io.ReadWriteCloser, error)

// App wires payment service dependencies.
type App struct {
	handler        *protocol.Handler
	dial           Dialer
	reconnectDelay time.Duration
	db             *sql.DB
	logger         *zap.Logger
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
	tariff, err := service.NewTariff(cfg.Tariff.HourlyRate)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	opts := []service.Option{service.WithLocation(loc)}

	var sqlDB *sql.DB
	if cfg.Database.DSN != "" {
		sqlDB, err = db.NewPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		auditRepo := repository.NewAuditRepository(sqlDB)
		if err := auditRepo.EnsureSchema(ctx); err != nil {
			sqlDB.Close()
			return nil, err
		}
		opts = append(opts, service.WithAuditSink(auditRepo))
	}

	billingService := service.NewBillingService(store, txLog, tariff, logger, opts...)

	a := &App{
		handler:        protocol.NewHandler(billingService, logger),
		reconnectDelay: cfg.ReconnectDelay(),
		db:             sqlDB,
		logger:         logger,
	}
	a.dial = func() (io.ReadWriteCloser, error) {
		return serialport.Open(cfg.Serial.Port, cfg.Serial.BaudRate)
	}

	logger.Info("payment service configured",
		zap.String("serial_port", cfg.Serial.Port),
		zap.String("ledger", store.Path()),
		zap.String("transactions", txLog.Path()),
		zap.Int64("hourly_rate", tariff.HourlyRate),
		zap.Bool("audit_mirror", sqlDB != nil),
	)
	return a, nil
}

// Run serves the controller channel until ctx is done, reopening it after every failure.
func (a *App) Run(ctx context.Context) error {
	for {
		channel, err := a.dial()
		if err != nil {
			a.logger.Warn("failed to open controller channel", zap.Error(err))
		} else {
			a.logger.Info("controller channel open, waiting for payment requests")
			err = a.serve(ctx, channel)
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Warn("controller channel failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(a.reconnectDelay):
		}
	}
}

// serve runs the handler on channel. Closing the channel is the only way to unblock a pending
// read, so cancellation closes it.
func (a *App) serve(ctx context.Context, channel io.ReadWriteCloser) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = channel.Close()
	}()
	return a.handler.Serve(ctx, channel)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
