package httpserver

import (
	"net/http"

	"parkpay/backend/services/dashboard-service/internal/http/handlers"
	"parkpay/backend/services/dashboard-service/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	Observer      *handlers.ObserverHandlers
	Subscribe     http.HandlerFunc
	HealthHandler http.HandlerFunc
}

// NewRouter wires HTTP routes with middleware. Everything but /health sits behind auth.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", method(http.MethodGet, deps.HealthHandler))

	authenticated := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, authMiddleware)
	}

	mux.Handle("/logs", method(http.MethodGet, authenticated(deps.Observer.Logs)))
	mux.Handle("/transactions", method(http.MethodGet, authenticated(deps.Observer.Transactions)))
	mux.Handle("/stats", method(http.MethodGet, authenticated(deps.Observer.Stats)))
	mux.Handle("/ws", method(http.MethodGet, authenticated(deps.Subscribe)))

	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
