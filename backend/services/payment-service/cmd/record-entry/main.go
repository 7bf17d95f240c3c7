// Command record-entry appends an unpaid ledger row for each plate given on the command line.
// The plate recognizer invokes it once per detection.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"parkpay/backend/libs/ledger"
	"parkpay/backend/libs/logging"
	"parkpay/backend/services/payment-service/internal/config"
)

func main() {
	plates := os.Args[1:]
	if len(plates) == 0 {
		fmt.Fprintln(os.Stderr, "usage: record-entry PLATE [PLATE...]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger("record-entry")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid timezone", zap.Error(err))
	}

	store, err := ledger.Open(cfg.Files.Ledger)
	if err != nil {
		logger.Fatal("failed to open ledger", zap.Error(err))
	}

	now := func() time.Time { return time.Now().In(loc) }
	if _, err := recordEntries(context.Background(), store, plates, now, logger); err != nil {
		logger.Fatal("failed to record entry", zap.Error(err))
	}
}

// recordEntries appends one unpaid row per non-blank plate. Plates are trimmed but otherwise kept
// exactly as recognized; the payment side looks them up verbatim.
func recordEntries(ctx context.Context, store ledger.Store, plates []string, now func() time.Time, logger *zap.Logger) (int, error) {
	recorded := 0
	for _, plate := range plates {
		plate = strings.TrimSpace(plate)
		if plate == "" {
			continue
		}
		at := now()
		if err := store.Append(ctx, plate, at); err != nil {
			return recorded, fmt.Errorf("record %s: %w", plate, err)
		}
		logger.Info("entry recorded", zap.String("plate", plate), zap.String("timestamp", ledger.FormatTime(at)))
		recorded++
	}
	return recorded, nil
}
