package models

import (
	"time"

	"parkpay/backend/libs/stats"
)

// Source names the file a change was observed in.
type Source string

// Observed files.
const (
	SourceLedger       Source = "ledger"
	SourceTransactions Source = "transactions"
)

// Event types pushed to subscribers.
const (
	EventChange   = "change"
	EventSnapshot = "stats_update"
)

// Transaction is the decoded form of a transaction log line.
type Transaction struct {
	Timestamp  time.Time `json:"timestamp"`
	Plate      string    `json:"plate"`
	Status     string    `json:"status"`
	OldBalance int64     `json:"old_balance"`
	NewBalance int64     `json:"new_balance"`
}

// Event is delivered to subscribers on every detected change, and once on subscribe.
type Event struct {
	Type       string      `json:"type"`
	Source     Source      `json:"source,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Stats      stats.Stats `json:"stats"`
	LatestLine string      `json:"latest_line,omitempty"`

	// LatestRecord is set when LatestLine parses.
	LatestRecord *Transaction `json:"latest_record,omitempty"`
}
