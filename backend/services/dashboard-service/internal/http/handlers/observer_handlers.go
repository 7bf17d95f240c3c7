package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"parkpay/backend/libs/ledger"
	"parkpay/backend/libs/stats"
)

// LedgerReader exposes the current ledger contents. Reading a missing ledger creates it.
type LedgerReader interface {
	Snapshot(ctx context.Context) (*ledger.Snapshot, error)
}

// LineReader exposes the transaction log lines. Reading a missing log creates it.
type LineReader interface {
	Lines(ctx context.Context) ([]string, error)
}

// StatsReader recomputes aggregates from disk.
type StatsReader interface {
	Recompute(ctx context.Context) (stats.Stats, error)
}

// ObserverHandlers serves read-only views of the ledger and transaction log.
type ObserverHandlers struct {
	ledger LedgerReader
	lines  LineReader
	stats  StatsReader
	logger *zap.Logger
}

// NewObserverHandlers returns handlers.
func NewObserverHandlers(ledgerReader LedgerReader, lines LineReader, statsReader StatsReader, logger *zap.Logger) *ObserverHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObserverHandlers{ledger: ledgerReader, lines: lines, stats: statsReader, logger: logger}
}

// Logs handles GET /logs: every well-formed ledger row keyed by column name.
func (h *ObserverHandlers) Logs(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ledger.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to read ledger", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	if n := snap.Skipped(); n > 0 {
		h.logger.Warn("ledger has malformed rows", zap.Int("skipped_rows", n))
	}
	writeJSON(w, http.StatusOK, snap.Records())
}

// Transactions handles GET /transactions: non-empty transaction log lines in file order.
func (h *ObserverHandlers) Transactions(w http.ResponseWriter, r *http.Request) {
	lines, err := h.lines.Lines(r.Context())
	if err != nil {
		h.logger.Error("failed to read transaction log", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "transaction log unavailable")
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, lines)
}

// Stats handles GET /stats.
func (h *ObserverHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	current, err := h.stats.Recompute(r.Context())
	if err != nil {
		h.logger.Error("failed to compute stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, current)
}
