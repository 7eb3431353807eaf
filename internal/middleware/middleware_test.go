package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/studiomatch/internal/metrics"
	"github.com/hitoshi/studiomatch/internal/model"
)

// statusMetrics は記録されたステータスコードを保持する。
type statusMetrics struct {
	metrics.Nop
	mu       sync.Mutex
	statuses []int
}

func (m *statusMetrics) RecordHTTPStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, code)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	mc := &statusMetrics{}

	handler := NewLoggingMiddleware(logger, mc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/teams", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-1"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log is not JSON: %v (%s)", err, buf.String())
	}
	if entry["level"] != "WARN" || entry["path"] != "/api/teams" || entry["user_id"] != "user-1" {
		t.Errorf("log entry = %v", entry)
	}
	if entry["status"] != float64(http.StatusConflict) {
		t.Errorf("status = %v, want 409", entry["status"])
	}
	if len(mc.statuses) != 1 || mc.statuses[0] != http.StatusConflict {
		t.Errorf("recorded statuses = %v", mc.statuses)
	}
}

func TestLoggingMiddleware_PreservesFlusher(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	var flushable bool
	handler := NewLoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
		fmt.Fprint(w, "data: 1\n\n")
		w.(http.Flusher).Flush()
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unread/stream", nil))

	if !flushable {
		t.Error("wrapped writer should implement http.Flusher")
	}
	if !rec.Flushed {
		t.Error("Flush was not forwarded")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	handler := NewRecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Code != "INTERNAL_ERROR" {
		t.Errorf("body = %+v, err = %v", body, err)
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := NewCORSMiddleware("http://localhost:3000")(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/swipes", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, csrfHeaderName) {
		t.Errorf("Allow-Headers = %q, want to include %s", got, csrfHeaderName)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for foreign origin = %q, want empty", got)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	NewSecurityHeadersMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestCSRFMiddleware(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(okHandler())

	// GETはトークンCookieを発行する
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d", w.Code)
	}
	var token string
	for _, c := range w.Result().Cookies() {
		if c.Name == csrfCookieName {
			token = c.Value
		}
	}
	if len(token) != 64 {
		t.Fatalf("csrf token = %q, want 64 hex chars", token)
	}

	tests := []struct {
		name   string
		cookie string
		header string
		want   int
	}{
		{"valid", token, token, http.StatusOK},
		{"missing cookie", "", token, http.StatusForbidden},
		{"missing header", token, "", http.StatusForbidden},
		{"mismatch", token, "other", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/swipes", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestCSRFTokenHandler_ReusesCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP(w, req)

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Token != "existing" {
		t.Errorf("token = %q, want existing", body.Token)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", model.NewValidationError("name", "required"), http.StatusBadRequest},
		{"already in team", model.NewAlreadyInTeamError(), http.StatusConflict},
		{"not found", model.NewTeamNotFoundError("t"), http.StatusNotFound},
		{"conversation not found", model.NewConversationNotFoundError("c"), http.StatusNotFound},
		{"rate limited", model.NewRateLimitedError(), http.StatusTooManyRequests},
		{"wrapped", fmt.Errorf("create: %w", model.NewTeamCreateFailedError(errors.New("x"))), http.StatusBadGateway},
		{"plain", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}
