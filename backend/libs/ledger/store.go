package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store is the ledger contract the billing engine depends on.
type Store interface {
	FindUnpaid(ctx context.Context, plate string) ([]Entry, error)
	MarkPaid(ctx context.Context, plate string, paidAt time.Time) (int, error)
	Settle(ctx context.Context, plate string, paidAt time.Time, check func(unpaid []Entry) error) (int, error)
	Append(ctx context.Context, plate string, enteredAt time.Time) error
	LoadAll(ctx context.Context) ([]Entry, error)
}

// FileStore keeps the ledger in a single CSV file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// Open returns a store for path, creating the file with its header if absent.
func Open(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("ledger: empty path")
	}
	s := &FileStore{path: path}
	if err := s.ensure(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the ledger file location.
func (s *FileStore) Path() string {
	return s.path
}

// LoadAll returns every decodable row in file order.
func (s *FileStore) LoadAll(ctx context.Context) ([]Entry, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Entries(), nil
}

// FindUnpaid returns the unpaid rows for plate.
func (s *FileStore) FindUnpaid(ctx context.Context, plate string) ([]Entry, error) {
	entries, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	var unpaid []Entry
	for _, e := range entries {
		if e.Plate == plate && !e.Paid {
			unpaid = append(unpaid, e)
		}
	}
	return unpaid, nil
}

// MarkPaid flips every currently unpaid row for plate to paid with the same payment timestamp
// and reports how many rows changed. Nothing is written when no row matches.
func (s *FileStore) MarkPaid(ctx context.Context, plate string, paidAt time.Time) (int, error) {
	return s.Settle(ctx, plate, paidAt, nil)
}

// Settle is MarkPaid guarded by check. check sees the unpaid rows for plate while the ledger is
// locked; when it returns an error nothing is written and the error is returned as is.
func (s *FileStore) Settle(ctx context.Context, plate string, paidAt time.Time, check func(unpaid []Entry) error) (int, error) {
	var updated int
	err := s.update(ctx, func(snap *Snapshot) (bool, error) {
		if check != nil {
			if err := check(snap.unpaid(plate)); err != nil {
				return false, err
			}
		}
		updated = snap.markPaid(plate, FormatTime(paidAt))
		return updated > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// Append records a new unpaid entry for plate.
func (s *FileStore) Append(ctx context.Context, plate string, enteredAt time.Time) error {
	if plate == "" {
		return errors.New("ledger: empty plate")
	}
	return s.update(ctx, func(snap *Snapshot) (bool, error) {
		snap.append(plate, FormatTime(enteredAt))
		return true, nil
	})
}

// Snapshot reads the whole file. A missing file is recreated and reads as empty.
func (s *FileStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.ensure(); err != nil {
			return nil, err
		}
		return newSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: read: %w", err)
	}
	return decode(bytes.NewReader(data))
}

// update runs one snapshot -> transform -> atomic replace cycle. transform reports whether it
// changed anything; unchanged snapshots and failed transforms are not written back.
func (s *FileStore) update(ctx context.Context, transform func(*Snapshot) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(s.path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	if snap.skipped > 0 {
		return fmt.Errorf("%w: %d undecodable rows in %s", ErrMalformedRow, snap.skipped, s.path)
	}
	changed, err := transform(snap)
	if err != nil || !changed {
		return err
	}

	var buf bytes.Buffer
	if err := encode(&buf, snap); err != nil {
		return fmt.Errorf("ledger: encode: %w", err)
	}
	return writeAtomic(s.path, buf.Bytes())
}

func (s *FileStore) ensure() error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ledger: stat: %w", err)
	}
	var buf bytes.Buffer
	if err := encode(&buf, newSnapshot()); err != nil {
		return fmt.Errorf("ledger: encode header: %w", err)
	}
	return writeAtomic(s.path, buf.Bytes())
}

// writeAtomic writes data to a temporary file in the target directory, fsyncs it, renames it
// over path and fsyncs the directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ledger: create dir: %w", err)
	}

	file, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ledger: create temp: %w", err)
	}
	tmp := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("ledger: write temp: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("ledger: sync temp: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ledger: close temp: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ledger: chmod temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ledger: install: %w", err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry so the rename survives power loss. Best effort: some
// platforms cannot fsync a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
