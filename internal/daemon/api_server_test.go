package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"devlens/internal/api"
	"devlens/internal/logging"
	"devlens/internal/notifications"
	"devlens/internal/testsupport"
)

func newTestServer(t *testing.T, opts ...testsupport.ConfigOption) *apiServer {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	d, err := New(cfg, logging.NewNop(), WithNotifier(notifications.NewNoop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d.api
}

func serve(srv *apiServer, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.handler().ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	srv := newTestServer(t, testsupport.WithAPIToken("s3cret"))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer s3cret", want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/modes", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if w := serve(srv, req); w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	if got := w.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Fatalf("expected generated request id, got %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-Request-ID", "abc")
	if got := serve(srv, req).Header().Get("X-Request-ID"); got != "abc" {
		t.Fatalf("expected caller request id echoed, got %q", got)
	}
}

func TestHandleDraftsRejectsUnknownStatus(t *testing.T) {
	srv := newTestServer(t)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/drafts?status=bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.Contains(resp.Error, "bogus") {
		t.Fatalf("unexpected error %q", resp.Error)
	}
}

func TestHandleActiveReturnsNull(t *testing.T) {
	srv := newTestServer(t)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/active-session", nil))
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "null" {
		t.Fatalf("expected null body, got %d %q", w.Code, w.Body.String())
	}
}

func TestHandleCreateRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader("{not json"))
	if w := serve(srv, req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	w := serve(srv, httptest.NewRequest(http.MethodDelete, "/api/sessions", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHandleProcessBeforeStart(t *testing.T) {
	srv := newTestServer(t)

	create := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"session_id":"idle"}`))
	if w := serve(srv, create); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/idle/process", strings.NewReader(`{"duration":3}`))
	if w := serve(srv, req); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while workflow is stopped, got %d", w.Code)
	}
}
