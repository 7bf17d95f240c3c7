// Package txlog is the append-only audit trail of payment attempts.
//
// Line format:
//
//	<timestamp> - <plate> - Status: <status>, Old Balance: <int>, New Balance: <int>
package txlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TimeLayout matches the ledger's timestamp format.
const TimeLayout = "2006-01-02 15:04:05"

const (
	oldBalanceMarker = "Old Balance: "
	newBalanceMarker = "New Balance: "
	statusMarker     = "Status: "
	fieldSeparator   = " - "

	// SuccessMarker is the substring revenue accounting keys on.
	SuccessMarker = "SUCCESS"
)

// ErrMalformedLine is returned by Parse for lines that do not follow the format.
var ErrMalformedLine = errors.New("txlog: malformed line")

// Record is one payment attempt.
type Record struct {
	Timestamp  time.Time
	Plate      string
	Status     string
	OldBalance int64
	NewBalance int64
}

// Format renders r as a single log line without the trailing newline.
func Format(r Record) string {
	return fmt.Sprintf("%s - %s - Status: %s, Old Balance: %d, New Balance: %d",
		r.Timestamp.Format(TimeLayout), r.Plate, r.Status, r.OldBalance, r.NewBalance)
}

// Parse decodes a line produced by Format. The timestamp is read in loc.
func Parse(line string, loc *time.Location) (Record, error) {
	if loc == nil {
		loc = time.Local
	}
	line = strings.TrimSpace(line)

	first := strings.Index(line, fieldSeparator)
	if first < 0 {
		return Record{}, fmt.Errorf("%w: no timestamp separator", ErrMalformedLine)
	}
	ts, err := time.ParseInLocation(TimeLayout, line[:first], loc)
	if err != nil {
		return Record{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedLine, err)
	}

	rest := line[first+len(fieldSeparator):]
	statusAt := strings.LastIndex(rest, fieldSeparator+statusMarker)
	if statusAt < 0 {
		return Record{}, fmt.Errorf("%w: no status", ErrMalformedLine)
	}
	plate := rest[:statusAt]
	body := rest[statusAt+len(fieldSeparator)+len(statusMarker):]

	oldAt := strings.LastIndex(body, ", "+oldBalanceMarker)
	if oldAt < 0 {
		return Record{}, fmt.Errorf("%w: no balances", ErrMalformedLine)
	}
	oldBalance, newBalance, ok := ExtractBalances(body[oldAt:])
	if !ok {
		return Record{}, fmt.Errorf("%w: balances", ErrMalformedLine)
	}

	return Record{
		Timestamp:  ts,
		Plate:      plate,
		Status:     body[:oldAt],
		OldBalance: oldBalance,
		NewBalance: newBalance,
	}, nil
}

// ExtractBalances pulls the integers after the "Old Balance: " and "New Balance: " markers.
func ExtractBalances(line string) (oldBalance, newBalance int64, ok bool) {
	oldAt := strings.LastIndex(line, oldBalanceMarker)
	newAt := strings.LastIndex(line, newBalanceMarker)
	if oldAt < 0 || newAt < oldAt {
		return 0, 0, false
	}

	oldRaw := line[oldAt+len(oldBalanceMarker):]
	if comma := strings.IndexByte(oldRaw, ','); comma >= 0 {
		oldRaw = oldRaw[:comma]
	}
	oldBalance, err := strconv.ParseInt(strings.TrimSpace(oldRaw), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	newBalance, err = strconv.ParseInt(strings.TrimSpace(line[newAt+len(newBalanceMarker):]), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return oldBalance, newBalance, true
}

// Log appends records to a text file.
type Log struct {
	path string
	mu   sync.Mutex
}

// Open returns a log for path, creating an empty file if absent.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, errors.New("txlog: empty path")
	}
	l := &Log{path: path}
	if err := l.ensure(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the log file location.
func (l *Log) Path() string {
	return l.path
}

// Append writes r as one complete line in a single write on an O_APPEND descriptor.
func (l *Log) Append(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line := Format(r) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("txlog: open: %w", err)
	}
	if _, err := f.Write([]byte(line)); err != nil {
		f.Close()
		return fmt.Errorf("txlog: append: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("txlog: sync: %w", err)
	}
	return f.Close()
}

// Lines returns every non-blank line, trimmed, in file order, whatever its length. A missing
// file is recreated.
func (l *Log) Lines(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, l.ensure()
	}
	if err != nil {
		return nil, fmt.Errorf("txlog: read: %w", err)
	}

	var lines []string
	for _, raw := range strings.Split(string(data), "\n") {
		if line := strings.TrimSpace(raw); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// LastLine returns the newest non-blank line, or "" for an empty log.
func (l *Log) LastLine(ctx context.Context) (string, error) {
	lines, err := l.Lines(ctx)
	if err != nil || len(lines) == 0 {
		return "", err
	}
	return lines[len(lines)-1], nil
}

func (l *Log) ensure() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("txlog: create dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("txlog: create: %w", err)
	}
	return f.Close()
}
