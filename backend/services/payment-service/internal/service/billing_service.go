package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"parkpay/backend/libs/ledger"
	"parkpay/backend/libs/txlog"
)

// TransactionLog is the append-only audit trail.
type TransactionLog interface {
	Append(ctx context.Context, r txlog.Record) error
}

// AuditSink mirrors transaction records somewhere else. Failures never change a result.
type AuditSink interface {
	Save(ctx context.Context, r txlog.Record) error
}

// BillingService computes fares from the ledger and authorizes payments against a presented
// balance. It is the only writer of the ledger's payment columns and of the transaction log.
type BillingService struct {
	ledger   ledger.Store
	txLog    TransactionLog
	audit    AuditSink
	tariff   Tariff
	now      func() time.Time
	location *time.Location
	logger   *zap.Logger
}

// Option customizes a BillingService.
type Option func(*BillingService)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *BillingService) { s.now = now }
}

// WithLocation sets the zone ledger timestamps are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *BillingService) { s.location = loc }
}

// WithAuditSink mirrors every logged record to sink.
func WithAuditSink(sink AuditSink) Option {
	return func(s *BillingService) { s.audit = sink }
}

// NewBillingService builds service.
func NewBillingService(store ledger.Store, txLog TransactionLog, tariff Tariff, logger *zap.Logger, opts ...Option) *BillingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &BillingService{
		ledger:   store,
		txLog:    txLog,
		tariff:   tariff,
		now:      time.Now,
		location: time.Local,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// errLedgerChanged means rows for the plate were added or settled between pricing and settling.
var errLedgerChanged = errors.New("ledger changed since the charge was priced")

// CalculateCharge sums hour-units over every unpaid row for plate as of now. Rows whose entry
// timestamp cannot be parsed are skipped.
func (s *BillingService) CalculateCharge(ctx context.Context, plate string, now time.Time) (amount, hours int64, err error) {
	entries, err := s.ledger.FindUnpaid(ctx, plate)
	if err != nil {
		return 0, 0, err
	}
	hours = s.sumHours(plate, entries, now, true)
	return s.tariff.Price(hours), hours, nil
}

func (s *BillingService) sumHours(plate string, entries []ledger.Entry, now time.Time, warn bool) (hours int64) {
	for _, e := range entries {
		entered, err := e.EntryTime(s.location)
		if err != nil {
			if warn {
				s.logger.Warn("skipping ledger row with bad timestamp",
					zap.String("plate", plate),
					zap.String("timestamp", e.Timestamp),
					zap.Error(err),
				)
			}
			continue
		}
		hours += HourUnits(entered, now)
	}
	return hours
}

// ProcessPayment runs the authorization state machine. The ledger is only touched after the
// full amount is known and covered by balance; every failure leaves it unmodified.
func (s *BillingService) ProcessPayment(ctx context.Context, plate string, balance int64) (res Result) {
	res = Result{Plate: plate, OldBalance: balance, NewBalance: balance}
	defer func() {
		if r := recover(); r != nil {
			res = processingError(plate, balance, fmt.Errorf("panic: %v", r))
		}
	}()

	now := s.now()

	amount, hours, err := s.CalculateCharge(ctx, plate, now)
	if err != nil {
		return processingError(plate, balance, err)
	}
	res.AmountDue = amount
	res.Hours = hours

	if hours == 0 {
		res.Status = StatusNoPendingHours
		return res
	}
	if balance < amount {
		res.Status = StatusInsufficientFunds
		res.Detail = fmt.Sprintf("Need %d, have %d", amount, balance)
		return res
	}

	// Only the rows that were priced may be settled. Every row with a valid timestamp is worth at
	// least one hour-unit, so a row added or settled since pricing changes the sum.
	updated, err := s.ledger.Settle(ctx, plate, now, func(unpaid []ledger.Entry) error {
		if s.sumHours(plate, unpaid, now, false) != hours {
			return errLedgerChanged
		}
		return nil
	})
	if err != nil {
		return processingError(plate, balance, err)
	}
	if updated == 0 {
		return processingError(plate, balance, errors.New("no unpaid rows left to settle"))
	}

	res.Status = StatusSuccess
	res.NewBalance = balance - amount
	return res
}

// Authorize processes the payment and appends the outcome to the transaction log, whatever it
// is. Logging failures are reported but never alter the result already applied to the ledger.
func (s *BillingService) Authorize(ctx context.Context, plate string, balance int64) Result {
	res := s.ProcessPayment(ctx, plate, balance)

	record := txlog.Record{
		Timestamp:  s.now(),
		Plate:      plate,
		Status:     res.StatusText(),
		OldBalance: res.OldBalance,
		NewBalance: res.NewBalance,
	}

	fields := []zap.Field{
		zap.String("plate", plate),
		zap.String("status", record.Status),
		zap.Int64("old_balance", res.OldBalance),
		zap.Int64("new_balance", res.NewBalance),
		zap.Int64("hours", res.Hours),
	}
	if res.Status == StatusProcessingError {
		s.logger.Error("payment processing failed", fields...)
	} else {
		s.logger.Info("payment processed", fields...)
	}

	// The outcome is already applied; a caller hanging up must not drop its record.
	logCtx := context.WithoutCancel(ctx)
	if err := s.txLog.Append(logCtx, record); err != nil {
		s.logger.Error("failed to append transaction log", zap.String("plate", plate), zap.Error(err))
	}
	if s.audit != nil {
		if err := s.audit.Save(logCtx, record); err != nil {
			s.logger.Warn("failed to mirror transaction", zap.String("plate", plate), zap.Error(err))
		}
	}
	return res
}

// lineSafe keeps error text on one line; both the log and the serial reply are line framed.
var lineSafe = strings.NewReplacer("\r", " ", "\n", " ")

func processingError(plate string, balance int64, err error) Result {
	return Result{
		Plate:      plate,
		Status:     StatusProcessingError,
		Detail:     lineSafe.Replace(err.Error()),
		OldBalance: balance,
		NewBalance: balance,
	}
}
