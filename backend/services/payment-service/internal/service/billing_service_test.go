package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkpay/backend/libs/ledger"
	"parkpay/backend/libs/txlog"
)

var entryTime = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store *ledger.FileStore
	log   *txlog.Log
	svc   *BillingService
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := ledger.Open(filepath.Join(dir, "plates_log.csv"))
	require.NoError(t, err)
	log, err := txlog.Open(filepath.Join(dir, "payment_log.txt"))
	require.NoError(t, err)

	f := &fixture{store: store, log: log, now: entryTime}
	f.svc = NewBillingService(store, log, Tariff{HourlyRate: 200}, zap.NewNop(),
		WithClock(func() time.Time { return f.now }),
		WithLocation(time.UTC),
	)
	return f
}

func (f *fixture) enter(t *testing.T, plate string, at time.Time) {
	t.Helper()
	require.NoError(t, f.store.Append(context.Background(), plate, at))
}

func (f *fixture) lines(t *testing.T) []string {
	t.Helper()
	lines, err := f.log.Lines(context.Background())
	require.NoError(t, err)
	return lines
}

func TestHourUnits(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		want    int64
	}{
		{"same second", 0, 1},
		{"clock skew", -5 * time.Minute, 1},
		{"one second", time.Second, 1},
		{"fifty nine minutes", 59 * time.Minute, 1},
		{"exactly one hour", time.Hour, 1},
		{"one hour one second", time.Hour + time.Second, 2},
		{"sixty one minutes", 61 * time.Minute, 2},
		{"exactly three hours", 3 * time.Hour, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HourUnits(entryTime, entryTime.Add(tc.elapsed)))
		})
	}
}

func TestHourUnitsMonotonic(t *testing.T) {
	prev := int64(0)
	for s := 0; s <= 10*3600; s += 97 {
		got := HourUnits(entryTime, entryTime.Add(time.Duration(s)*time.Second))
		require.GreaterOrEqual(t, got, prev, "elapsed %ds", s)
		prev = got
	}
}

func TestNewTariff(t *testing.T) {
	_, err := NewTariff(0)
	require.Error(t, err)

	tariff, err := NewTariff(200)
	require.NoError(t, err)
	assert.Equal(t, int64(600), tariff.Price(3))
}

func TestCalculateChargeSumsEveryUnpaidRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enter(t, "RAB123A", entryTime)
	f.enter(t, "RAB123A", entryTime.Add(90*time.Minute))
	f.enter(t, "RAC456B", entryTime)

	amount, hours, err := f.svc.CalculateCharge(ctx, "RAB123A", entryTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), hours)
	assert.Equal(t, int64(600), amount)
}

func TestCalculateChargeSkipsBadTimestamps(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "plates_log.csv")
	body := "Plate Number,Payment Status,Timestamp,Payment Timestamp\n" +
		"RAB123A,0,not-a-time,\n" +
		"RAB123A,0,2024-05-01 08:00:00,\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	store, err := ledger.Open(path)
	require.NoError(t, err)
	log, err := txlog.Open(filepath.Join(dir, "payment_log.txt"))
	require.NoError(t, err)

	svc := NewBillingService(store, log, Tariff{HourlyRate: 200}, nil, WithLocation(time.UTC))
	amount, hours, err := svc.CalculateCharge(ctx, "RAB123A", entryTime.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), hours)
	assert.Equal(t, int64(200), amount)
}

func TestAuthorizeSuccessWithinFirstHour(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enter(t, "RAB123A", entryTime)
	f.now = entryTime.Add(59 * time.Minute)

	res := f.svc.Authorize(ctx, "RAB123A", 300)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, int64(200), res.AmountDue)
	assert.Equal(t, int64(1), res.Hours)
	assert.Equal(t, int64(100), res.NewBalance)
	assert.Equal(t, int64(200), res.Charged())

	entries, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Paid)
	assert.Equal(t, "2024-05-01 08:59:00", entries[0].PaymentTimestamp)

	lines := f.lines(t)
	require.Len(t, lines, 1)
	assert.Equal(t, "2024-05-01 08:59:00 - RAB123A - Status: SUCCESS, Old Balance: 300, New Balance: 100", lines[0])
}

func TestAuthorizeInsufficientFundsAfterSixtyOneMinutes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enter(t, "RAB123A", entryTime)
	f.now = entryTime.Add(61 * time.Minute)

	res := f.svc.Authorize(ctx, "RAB123A", 100)
	assert.Equal(t, StatusInsufficientFunds, res.Status)
	assert.Equal(t, int64(400), res.AmountDue)
	assert.Equal(t, int64(100), res.NewBalance)
	assert.Equal(t, "INSUFFICIENT_FUNDS: Need 400, have 100", res.StatusText())

	unpaid, err := f.store.FindUnpaid(ctx, "RAB123A")
	require.NoError(t, err)
	assert.Len(t, unpaid, 1)

	lines := f.lines(t)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Status: INSUFFICIENT_FUNDS: Need 400, have 100, Old Balance: 100, New Balance: 100")
}

func TestAuthorizeNoPendingHoursStillLogs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.svc.Authorize(ctx, "RAZ999Z", 500)
	assert.Equal(t, StatusNoPendingHours, res.Status)
	assert.Equal(t, int64(500), res.NewBalance)

	lines := f.lines(t)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "Status: NO_PENDING_HOURS, Old Balance: 500, New Balance: 500"))
}

func TestAuthorizeTwiceNeverDoubleCharges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enter(t, "RAB123A", entryTime)
	f.now = entryTime.Add(10 * time.Minute)

	first := f.svc.Authorize(ctx, "RAB123A", 1000)
	second := f.svc.Authorize(ctx, "RAB123A", first.NewBalance)

	assert.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, int64(800), first.NewBalance)
	assert.Equal(t, StatusNoPendingHours, second.Status)
	assert.Equal(t, int64(800), second.NewBalance)
	assert.Len(t, f.lines(t), 2)
}

func TestAuthorizeSettlesAllRowsWithOneTimestamp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enter(t, "RAB123A", entryTime)
	f.enter(t, "RAC456B", entryTime)
	f.enter(t, "RAB123A", entryTime.Add(3*time.Hour))
	f.now = entryTime.Add(4 * time.Hour)

	res := f.svc.Authorize(ctx, "RAB123A", 5000)
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, int64(5), res.Hours)
	assert.Equal(t, int64(1000), res.Charged())

	entries, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Plate == "RAB123A" {
			assert.True(t, e.Paid)
			assert.Equal(t, "2024-05-01 12:00:00", e.PaymentTimestamp)
		} else {
			assert.False(t, e.Paid)
		}
	}
}

type failingStore struct {
	ledger.Store
	findErr error
	markErr error
	marked  int
}

func (s *failingStore) FindUnpaid(ctx context.Context, plate string) ([]ledger.Entry, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return []ledger.Entry{{Plate: plate, Timestamp: "2024-05-01 08:00:00"}}, nil
}

func (s *failingStore) MarkPaid(ctx context.Context, plate string, paidAt time.Time) (int, error) {
	return s.marked, s.markErr
}

func (s *failingStore) Settle(ctx context.Context, plate string, paidAt time.Time, check func([]ledger.Entry) error) (int, error) {
	return s.marked, s.markErr
}

// racingStore wraps a settle with hooks for work that lands concurrently with it.
type racingStore struct {
	*ledger.FileStore
	before func()
	after  func()
}

func (s *racingStore) Settle(ctx context.Context, plate string, paidAt time.Time, check func([]ledger.Entry) error) (int, error) {
	if s.before != nil {
		s.before()
	}
	n, err := s.FileStore.Settle(ctx, plate, paidAt, check)
	if s.after != nil {
		s.after()
	}
	return n, err
}

func TestAuthorizeRefusesRowsAddedAfterPricing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enter(t, "RAB123A", entryTime)
	f.now = entryTime.Add(30 * time.Minute)

	store := &racingStore{FileStore: f.store, before: func() {
		f.enter(t, "RAB123A", f.now.Add(-5*time.Hour))
	}}
	svc := NewBillingService(store, f.log, Tariff{HourlyRate: 200}, zap.NewNop(),
		WithClock(func() time.Time { return f.now }),
		WithLocation(time.UTC),
	)

	res := svc.Authorize(ctx, "RAB123A", 1000)
	assert.Equal(t, StatusProcessingError, res.Status)
	assert.Equal(t, int64(1000), res.NewBalance)
	assert.Contains(t, res.Detail, errLedgerChanged.Error())

	unpaid, err := f.store.FindUnpaid(ctx, "RAB123A")
	require.NoError(t, err)
	assert.Len(t, unpaid, 2)

	lines := f.lines(t)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Status: PROCESSING_ERROR: ")
}

func TestAuthorizeLogsSuccessAfterCallerCancels(t *testing.T) {
	f := newFixture(t)
	f.enter(t, "RAB123A", entryTime)
	f.now = entryTime.Add(10 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &racingStore{FileStore: f.store, after: cancel}
	sink := &recordingSink{}
	svc := NewBillingService(store, f.log, Tariff{HourlyRate: 200}, zap.NewNop(),
		WithClock(func() time.Time { return f.now }),
		WithLocation(time.UTC),
		WithAuditSink(sink),
	)

	res := svc.Authorize(ctx, "RAB123A", 300)
	require.Equal(t, StatusSuccess, res.Status)
	require.Error(t, ctx.Err())

	lines := f.lines(t)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Status: SUCCESS, Old Balance: 300, New Balance: 100")
	require.Len(t, sink.saved, 1)

	unpaid, err := f.store.FindUnpaid(context.Background(), "RAB123A")
	require.NoError(t, err)
	assert.Empty(t, unpaid)
}

type memoryLog struct {
	records []txlog.Record
	err     error
}

func (m *memoryLog) Append(ctx context.Context, r txlog.Record) error {
	m.records = append(m.records, r)
	return m.err
}

func TestAuthorizeProcessingErrors(t *testing.T) {
	cases := []struct {
		name  string
		store *failingStore
	}{
		{"read fails", &failingStore{findErr: errors.New("ledger: read: disk\ngone")}},
		{"write fails", &failingStore{markErr: errors.New("ledger: install: read-only fs")}},
		{"nothing updated", &failingStore{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log := &memoryLog{}
			svc := NewBillingService(tc.store, log, Tariff{HourlyRate: 200}, zap.NewNop(),
				WithClock(func() time.Time { return entryTime.Add(time.Hour) }),
				WithLocation(time.UTC),
			)

			res := svc.Authorize(context.Background(), "RAB123A", 1000)
			assert.Equal(t, StatusProcessingError, res.Status)
			assert.Equal(t, int64(1000), res.NewBalance)
			assert.NotContains(t, res.StatusText(), "\n")

			require.Len(t, log.records, 1)
			assert.True(t, strings.HasPrefix(log.records[0].Status, "PROCESSING_ERROR: "))
			assert.Equal(t, log.records[0].OldBalance, log.records[0].NewBalance)
		})
	}
}

type recordingSink struct {
	saved []txlog.Record
	err   error
}

func (r *recordingSink) Save(ctx context.Context, rec txlog.Record) error {
	r.saved = append(r.saved, rec)
	return r.err
}

func TestAuthorizeMirrorsToAuditSinkWithoutAffectingResult(t *testing.T) {
	f := newFixture(t)
	f.enter(t, "RAB123A", entryTime)
	f.now = entryTime.Add(time.Minute)

	sink := &recordingSink{err: errors.New("db down")}
	WithAuditSink(sink)(f.svc)

	res := f.svc.Authorize(context.Background(), "RAB123A", 300)
	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, sink.saved, 1)
	assert.Equal(t, "SUCCESS", sink.saved[0].Status)
	assert.Equal(t, int64(100), sink.saved[0].NewBalance)
}

func TestAuthorizeLogFailureKeepsResult(t *testing.T) {
	store := &failingStore{marked: 1}
	log := &memoryLog{err: errors.New("disk full")}
	svc := NewBillingService(store, log, Tariff{HourlyRate: 200}, zap.NewNop(),
		WithClock(func() time.Time { return entryTime.Add(30 * time.Minute) }),
		WithLocation(time.UTC),
	)

	res := svc.Authorize(context.Background(), "RAB123A", 250)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, int64(50), res.NewBalance)
}
