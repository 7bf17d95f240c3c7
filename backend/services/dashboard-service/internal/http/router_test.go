package httpserver

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkpay/backend/libs/ledger"
	"parkpay/backend/libs/stats"
	"parkpay/backend/libs/txlog"
	"parkpay/backend/services/dashboard-service/internal/http/handlers"
	"parkpay/backend/services/dashboard-service/internal/http/middleware"
)

func newRouter(t *testing.T, secret string) http.Handler {
	t.Helper()
	dir := t.TempDir()
	store, err := ledger.Open(filepath.Join(dir, "plates_log.csv"))
	require.NoError(t, err)
	log, err := txlog.Open(filepath.Join(dir, "payment_log.txt"))
	require.NoError(t, err)

	return NewRouter(RouterDeps{
		Observer:      handlers.NewObserverHandlers(store, log, stats.NewAggregator(store, log), zap.NewNop()),
		Subscribe:     func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) },
		HealthHandler: handlers.NewHealthHandler(),
	}, middleware.AuthMiddleware(secret))
}

func TestRouterServesObserverEndpoints(t *testing.T) {
	router := newRouter(t, "")
	for _, path := range []string{"/logs", "/transactions", "/stats", "/health"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRouterRejectsOtherMethods(t *testing.T) {
	router := newRouter(t, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stats", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestRouterGuardsEverythingButHealth(t *testing.T) {
	router := newRouter(t, "secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, path := range []string{"/logs", "/transactions", "/stats", "/ws"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}
