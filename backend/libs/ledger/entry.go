// Package ledger owns the CSV table of vehicle entries and their payment status.
//
// The file is the single source of truth for "is this vehicle paid". Every mutation reads the
// whole table, transforms it in memory and installs the result with an atomic rename, so a
// concurrent reader in another process sees either the previous or the new table.
package ledger

import (
	"errors"
	"strings"
	"time"
)

// TimeLayout is the second-resolution wall-clock format used in every timestamp column.
const TimeLayout = "2006-01-02 15:04:05"

// Column names. Header order in the file is authoritative.
const (
	ColumnPlate            = "Plate Number"
	ColumnStatus           = "Payment Status"
	ColumnTimestamp        = "Timestamp"
	ColumnPaymentTimestamp = "Payment Timestamp"
)

const (
	statusPaid   = "1"
	statusUnpaid = "0"
)

// Header is written when the ledger is created.
var Header = []string{ColumnPlate, ColumnStatus, ColumnTimestamp, ColumnPaymentTimestamp}

// ErrMalformedRow marks a row the CSV decoder rejected. Readers skip such rows; writers refuse
// to rewrite a table containing them so that nothing is dropped.
var ErrMalformedRow = errors.New("ledger: malformed row")

// Entry is one vehicle entry event. Plates are not unique across the ledger.
type Entry struct {
	Plate            string `json:"plate"`
	Paid             bool   `json:"paid"`
	Timestamp        string `json:"timestamp"`
	PaymentTimestamp string `json:"payment_timestamp"`
}

// EntryTime parses Timestamp in loc.
func (e Entry) EntryTime(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(TimeLayout, strings.TrimSpace(e.Timestamp), loc)
}

// FormatTime renders t in the ledger's timestamp format.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

func entryFromRow(r row) Entry {
	return Entry{
		Plate:            r[ColumnPlate],
		Paid:             strings.TrimSpace(r[ColumnStatus]) == statusPaid,
		Timestamp:        r[ColumnTimestamp],
		PaymentTimestamp: r[ColumnPaymentTimestamp],
	}
}
