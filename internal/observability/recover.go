package observability

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
)

func RecoverMiddleware(component string) func(http.Handler) http.Handler {
	log := Component(component)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error(r.Context(), "panic recovered",
						"panic", fmt.Sprintf("%v", rec),
						"method", r.Method,
						"path", r.URL.Path,
						"traceback", compactStack(string(debug.Stack())),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"detail":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func compactStack(stack string) string {
	lines := strings.Split(stack, "\n")
	if len(lines) <= 16 {
		return strings.TrimSpace(stack)
	}
	return strings.TrimSpace(strings.Join(lines[:16], "\n"))
}
