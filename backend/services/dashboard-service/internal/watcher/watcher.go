// Package watcher detects ledger and transaction log mutations from outside the writer process
// and turns them into change events carrying freshly computed aggregates.
package watcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"parkpay/backend/libs/stats"
	"parkpay/backend/libs/txlog"
	"parkpay/backend/services/dashboard-service/internal/models"
)

const (
	// DefaultInterval is the normal polling cadence.
	DefaultInterval = time.Second
	// DefaultBackoff is the pause after an unexpected error.
	DefaultBackoff = 5 * time.Second
)

// Sink receives change events. Delivery is best effort.
type Sink interface {
	Publish(ctx context.Context, ev models.Event)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(ctx context.Context, ev models.Event) {
	for _, s := range m {
		s.Publish(ctx, ev)
	}
}

// Recomputer rebuilds aggregates from the files on disk.
type Recomputer interface {
	Recompute(ctx context.Context) (stats.Stats, error)
}

// LastLiner yields the newest transaction log line.
type LastLiner interface {
	LastLine(ctx context.Context) (string, error)
}

// Watcher runs the single polling loop.
type Watcher struct {
	ledger       ChangeSource
	transactions ChangeSource
	stats        Recomputer
	txLog        LastLiner
	sink         Sink
	interval     time.Duration
	backoff      time.Duration
	location     *time.Location
	now          func() time.Time
	logger       *zap.Logger
}

// Config groups Watcher collaborators.
type Config struct {
	Ledger       ChangeSource
	Transactions ChangeSource
	Stats        Recomputer
	TxLog        LastLiner
	Sink         Sink
	Interval     time.Duration
	Backoff      time.Duration
	// Location is the zone transaction log timestamps were written in; nil means local time.
	Location     *time.Location
	Now          func() time.Time
	Logger       *zap.Logger
}

// New builds a Watcher, applying defaults for zero intervals.
func New(cfg Config) *Watcher {
	w := &Watcher{
		ledger:       cfg.Ledger,
		transactions: cfg.Transactions,
		stats:        cfg.Stats,
		txLog:        cfg.TxLog,
		sink:         cfg.Sink,
		interval:     cfg.Interval,
		backoff:      cfg.Backoff,
		location:     cfg.Location,
		now:          cfg.Now,
		logger:       cfg.Logger,
	}
	if w.interval <= 0 {
		w.interval = DefaultInterval
	}
	if w.backoff <= 0 {
		w.backoff = DefaultBackoff
	}
	if w.location == nil {
		w.location = time.Local
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	return w
}

// Run polls until ctx is done. Errors never escape the loop; they are logged and the next
// check waits for the backoff interval instead.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching ledger and transaction log", zap.Duration("interval", w.interval))
	for {
		wait := w.interval
		if err := w.safeCheck(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("log watcher error", zap.Error(err), zap.Duration("backoff", w.backoff))
			wait = w.backoff
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (w *Watcher) safeCheck(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("watcher: panic: %v", r)
		}
	}()
	return w.Check(ctx)
}

// Check runs one iteration: poll both sources and publish an event for each that changed. A
// change that could not be published is rearmed so the next Check retries it.
func (w *Watcher) Check(ctx context.Context) error {
	changed, err := w.ledger.Poll()
	if err != nil {
		return fmt.Errorf("watcher: poll %s: %w", w.ledger.Source(), err)
	}
	if changed {
		if err := w.emit(ctx, models.SourceLedger, ""); err != nil {
			w.ledger.Rearm()
			return err
		}
	}

	changed, err = w.transactions.Poll()
	if err != nil {
		return fmt.Errorf("watcher: poll %s: %w", w.transactions.Source(), err)
	}
	if changed {
		if err := w.emitTransaction(ctx); err != nil {
			w.transactions.Rearm()
			return err
		}
	}
	return nil
}

func (w *Watcher) emitTransaction(ctx context.Context) error {
	line, err := w.txLog.LastLine(ctx)
	if err != nil {
		return fmt.Errorf("watcher: read latest transaction: %w", err)
	}
	return w.emit(ctx, models.SourceTransactions, line)
}

func (w *Watcher) emit(ctx context.Context, source models.Source, latestLine string) error {
	current, err := w.stats.Recompute(ctx)
	if err != nil {
		return fmt.Errorf("watcher: recompute stats: %w", err)
	}
	w.logger.Debug("change detected", zap.String("source", string(source)), zap.Any("stats", current))

	ev := models.Event{
		Type:       models.EventChange,
		Source:     source,
		Timestamp:  w.now().UTC(),
		Stats:      current,
		LatestLine: latestLine,
	}
	if latestLine != "" {
		if rec, err := txlog.Parse(latestLine, w.location); err == nil {
			ev.LatestRecord = &models.Transaction{
				Timestamp:  rec.Timestamp,
				Plate:      rec.Plate,
				Status:     rec.Status,
				OldBalance: rec.OldBalance,
				NewBalance: rec.NewBalance,
			}
		} else {
			w.logger.Debug("latest transaction line is not structured", zap.Error(err))
		}
	}
	w.sink.Publish(ctx, ev)
	return nil
}
