package ledger

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// row maps column name to raw cell value. Columns the row lacks read as "".
type row map[string]string

// Snapshot is the full in-memory copy of the ledger file.
type Snapshot struct {
	header  []string
	rows    []row
	skipped int
}

func newSnapshot() *Snapshot {
	return &Snapshot{header: append([]string(nil), Header...)}
}

// Entries returns the decoded rows in file order.
func (s *Snapshot) Entries() []Entry {
	entries := make([]Entry, 0, len(s.rows))
	for _, r := range s.rows {
		entries = append(entries, entryFromRow(r))
	}
	return entries
}

// Records returns every row keyed by column name, unknown columns included.
func (s *Snapshot) Records() []map[string]string {
	records := make([]map[string]string, 0, len(s.rows))
	for _, r := range s.rows {
		rec := make(map[string]string, len(s.header))
		for _, name := range s.header {
			rec[name] = r[name]
		}
		records = append(records, rec)
	}
	return records
}

// Skipped reports how many rows the decoder rejected.
func (s *Snapshot) Skipped() int {
	return s.skipped
}

func (s *Snapshot) unpaid(plate string) []Entry {
	var entries []Entry
	for _, r := range s.rows {
		if r[ColumnPlate] == plate && strings.TrimSpace(r[ColumnStatus]) != statusPaid {
			entries = append(entries, entryFromRow(r))
		}
	}
	return entries
}

func (s *Snapshot) markPaid(plate, paidAt string) int {
	updated := 0
	for _, r := range s.rows {
		if r[ColumnPlate] != plate || strings.TrimSpace(r[ColumnStatus]) == statusPaid {
			continue
		}
		r[ColumnStatus] = statusPaid
		r[ColumnPaymentTimestamp] = paidAt
		updated++
	}
	return updated
}

func (s *Snapshot) append(plate, enteredAt string) {
	s.rows = append(s.rows, row{
		ColumnPlate:            plate,
		ColumnStatus:           statusUnpaid,
		ColumnTimestamp:        enteredAt,
		ColumnPaymentTimestamp: "",
	})
}

func decode(r io.Reader) (*Snapshot, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return newSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: read header: %w", err)
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}

	snap := &Snapshot{header: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			snap.skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ledger: read row: %w", err)
		}
		if len(record) > len(header) {
			snap.skipped++
			continue
		}

		r := make(row, len(header))
		for i, name := range header {
			if i < len(record) {
				r[name] = record[i]
			}
		}
		snap.rows = append(snap.rows, r)
	}
	return snap, nil
}

func encode(w io.Writer, snap *Snapshot) error {
	header := snap.header
	if !contains(header, ColumnPaymentTimestamp) {
		header = append(append([]string(nil), header...), ColumnPaymentTimestamp)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, r := range snap.rows {
		for i, name := range header {
			record[i] = r[name]
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
