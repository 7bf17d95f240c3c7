package service

import "fmt"

// Status is the terminal outcome of one payment attempt.
type Status string

// Statuses as written to the transaction log.
const (
	StatusSuccess           Status = "SUCCESS"
	StatusInsufficientFunds Status = "INSUFFICIENT_FUNDS"
	StatusNoPendingHours    Status = "NO_PENDING_HOURS"
	StatusProcessingError   Status = "PROCESSING_ERROR"
)

// Result describes one authorization. NewBalance equals OldBalance unless Status is
// StatusSuccess.
type Result struct {
	Plate      string
	Status     Status
	Detail     string
	OldBalance int64
	NewBalance int64
	AmountDue  int64
	Hours      int64
}

// StatusText renders the status the way the log and the controller see it,
// e.g. "INSUFFICIENT_FUNDS: Need 400, have 100".
func (r Result) StatusText() string {
	if r.Detail == "" {
		return string(r.Status)
	}
	return fmt.Sprintf("%s: %s", r.Status, r.Detail)
}

// Charged reports the amount actually deducted.
func (r Result) Charged() int64 {
	return r.OldBalance - r.NewBalance
}
