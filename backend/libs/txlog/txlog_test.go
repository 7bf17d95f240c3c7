package txlog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	r := Record{
		Timestamp:  time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		Plate:      "RAB123A",
		Status:     "SUCCESS",
		OldBalance: 300,
		NewBalance: 100,
	}
	assert.Equal(t, "2024-05-01 09:30:00 - RAB123A - Status: SUCCESS, Old Balance: 300, New Balance: 100", Format(r))
}

func TestParseRoundTripsStatusesWithCommas(t *testing.T) {
	statuses := []string{
		"SUCCESS",
		"NO_PENDING_HOURS",
		"INSUFFICIENT_FUNDS: Need 400, have 100",
		"PROCESSING_ERROR: ledger: read: permission denied",
	}
	for _, status := range statuses {
		t.Run(status, func(t *testing.T) {
			want := Record{
				Timestamp:  time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
				Plate:      "RAB 123A",
				Status:     status,
				OldBalance: 100,
				NewBalance: 100,
			}
			got, err := Parse(Format(want), time.UTC)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	lines := []string{
		"",
		"garbage",
		"2024-05-01 09:30:00 - RAB123A - SUCCESS",
		"not a time - RAB123A - Status: SUCCESS, Old Balance: 1, New Balance: 0",
		"2024-05-01 09:30:00 - RAB123A - Status: SUCCESS, Old Balance: x, New Balance: 0",
	}
	for _, line := range lines {
		_, err := Parse(line, time.UTC)
		assert.ErrorIs(t, err, ErrMalformedLine, "line %q", line)
	}
}

func TestExtractBalances(t *testing.T) {
	old, nw, ok := ExtractBalances("x - y - Status: SUCCESS, Old Balance: 300, New Balance: 100")
	require.True(t, ok)
	assert.Equal(t, int64(300), old)
	assert.Equal(t, int64(100), nw)

	_, _, ok = ExtractBalances("New Balance: 1, Old Balance: 2")
	assert.False(t, ok)
	_, _, ok = ExtractBalances("Old Balance: 2, New Balance: ")
	assert.False(t, ok)
}

func TestAppendIsOrderedAndLinesTrimmed(t *testing.T) {
	ctx := context.Background()
	log, err := Open(filepath.Join(t.TempDir(), "payment_log.txt"))
	require.NoError(t, err)

	last, err := log.LastLine(ctx)
	require.NoError(t, err)
	assert.Empty(t, last)

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, log.Append(ctx, Record{
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Plate:      "RAB123A",
			Status:     "NO_PENDING_HOURS",
			OldBalance: int64(i),
			NewBalance: int64(i),
		}))
	}

	lines, err := log.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	for i, line := range lines {
		r, err := Parse(line, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, int64(i), r.OldBalance)
	}

	last, err = log.LastLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, lines[2], last)
}

func TestLinesRecreatesMissingFile(t *testing.T) {
	ctx := context.Background()
	log, err := Open(filepath.Join(t.TempDir(), "payment_log.txt"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(log.Path()))

	lines, err := log.Lines(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.FileExists(t, log.Path())
}

func TestLinesReadsLinesOverAMegabyte(t *testing.T) {
	ctx := context.Background()
	log, err := Open(filepath.Join(t.TempDir(), "payment_log.txt"))
	require.NoError(t, err)

	long := Record{
		Timestamp:  time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Plate:      "RAB123A",
		Status:     "PROCESSING_ERROR: " + strings.Repeat("x", 2<<20),
		OldBalance: 500,
		NewBalance: 500,
	}
	require.NoError(t, log.Append(ctx, long))
	require.NoError(t, log.Append(ctx, Record{Timestamp: long.Timestamp, Plate: "RAC456B", Status: "SUCCESS", OldBalance: 300, NewBalance: 100}))

	lines, err := log.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], len(Format(long)))

	last, err := log.LastLine(ctx)
	require.NoError(t, err)
	assert.Contains(t, last, "RAC456B")
}
