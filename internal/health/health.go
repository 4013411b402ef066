// Package health serves the liveness and readiness probes.
package health

import (
	"net/http"
	"strings"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Check reports why a dependency is not ready, or nil when it is.
type Check func() error

// Readyz returns a handler that answers 200 "ready\n" once every check
// passes and 503 with the failing reasons otherwise.
func Readyz(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reasons []string
		for _, check := range checks {
			if err := check(); err != nil {
				reasons = append(reasons, err.Error())
			}
		}

		w.Header().Set("Content-Type", "text/plain")
		if len(reasons) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: " + strings.Join(reasons, "; ") + "\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
	}
}
