package app

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkpay/backend/services/dashboard-service/internal/config"
	"parkpay/backend/services/dashboard-service/internal/models"
	"parkpay/backend/services/dashboard-service/internal/watcher"
)

func testConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.HTTP.Port = "0"
	cfg.Files.Ledger = filepath.Join(dir, "plates_log.csv")
	cfg.Files.Transactions = filepath.Join(dir, "payment_log.txt")
	cfg.Watcher.Mode = mode
	cfg.Watcher.Interval = 10 * time.Millisecond
	return cfg
}

func TestNewSelectsChangeSources(t *testing.T) {
	for mode, want := range map[string]interface{}{
		config.WatchModePoll:   &watcher.SizeSource{},
		config.WatchModeNotify: &watcher.NotifySource{},
	} {
		t.Run(mode, func(t *testing.T) {
			a, err := New(context.Background(), testConfig(t, mode), zap.NewNop())
			require.NoError(t, err)
			defer a.Close()

			require.Len(t, a.sources, 2)
			assert.IsType(t, want, a.sources[0])
			assert.Equal(t, models.SourceLedger, a.sources[0].Source())
			assert.Equal(t, models.SourceTransactions, a.sources[1].Source())
			assert.Nil(t, a.redis)
		})
	}
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig(t, config.WatchModePoll)
	cfg.Redis.Addr = "127.0.0.1:1"
	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, testConfig(t, config.WatchModePoll), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, a.hub.Count())
}

func TestRunReturnsWhenListenFails(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	cfg := testConfig(t, config.WatchModePoll)
	cfg.HTTP.Port = port
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the listener failed")
	}
}

func TestSnapshotFuncBuildsStatsUpdate(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, config.WatchModePoll), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	ev, err := snapshotFunc(a.aggregator)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.EventSnapshot, ev.Type)
	assert.Empty(t, ev.Source)
	assert.Zero(t, ev.Stats.TotalVehicles)
}
