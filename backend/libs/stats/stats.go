// Package stats derives dashboard aggregates from the ledger and transaction log.
package stats

import (
	"context"
	"strings"

	"parkpay/backend/libs/ledger"
	"parkpay/backend/libs/txlog"
)

// Stats is recomputed from scratch on every change; it is never patched incrementally.
type Stats struct {
	TotalVehicles   int   `json:"total_vehicles"`
	PaidVehicles    int   `json:"paid_vehicles"`
	PendingPayments int   `json:"pending_payments"`
	TotalRevenue    int64 `json:"total_revenue"`
}

// Compute counts distinct plates and paid/pending rows, and sums the balance delta of every
// SUCCESS line. Lines whose balances cannot be read are skipped.
func Compute(entries []ledger.Entry, lines []string) Stats {
	var s Stats
	plates := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		plates[e.Plate] = struct{}{}
		if e.Paid {
			s.PaidVehicles++
		} else {
			s.PendingPayments++
		}
	}
	s.TotalVehicles = len(plates)

	for _, line := range lines {
		if !strings.Contains(line, txlog.SuccessMarker) {
			continue
		}
		oldBalance, newBalance, ok := txlog.ExtractBalances(line)
		if !ok {
			continue
		}
		s.TotalRevenue += oldBalance - newBalance
	}
	return s
}

// EntrySource yields the current ledger rows.
type EntrySource interface {
	LoadAll(ctx context.Context) ([]ledger.Entry, error)
}

// LineSource yields the current transaction log lines.
type LineSource interface {
	Lines(ctx context.Context) ([]string, error)
}

// Aggregator rescans both files on demand.
type Aggregator struct {
	entries EntrySource
	lines   LineSource
}

// NewAggregator builds an Aggregator.
func NewAggregator(entries EntrySource, lines LineSource) *Aggregator {
	return &Aggregator{entries: entries, lines: lines}
}

// Recompute reads both files and returns fresh aggregates.
func (a *Aggregator) Recompute(ctx context.Context) (Stats, error) {
	entries, err := a.entries.LoadAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	lines, err := a.lines.Lines(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Compute(entries, lines), nil
}
