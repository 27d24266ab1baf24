package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFromContext(r.Context()) == "" {
			t.Fatal("expected request id in context")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodPost, "/mails", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	got := w.Result().Header.Get("X-Request-ID")
	if got == "" {
		t.Fatal("expected X-Request-ID response header")
	}
	if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("generated request id %q is not a uuid: %v", got, err)
	}
}

func TestRequestIDMiddlewareKeepsInboundID(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Request-ID", "caller-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if seen != "caller-42" {
		t.Fatalf("context request id=%q want=caller-42", seen)
	}
	if got := w.Result().Header.Get("X-Request-ID"); got != "caller-42" {
		t.Fatalf("response request id=%q want=caller-42", got)
	}
}
