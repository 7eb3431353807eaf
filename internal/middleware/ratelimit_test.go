package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/studiomatch/internal/model"
)

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/swipes", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

func TestRateLimiter_GeneralLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 2,
		SwipeRate: 1, SwipeBurst: 10,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}

	// 別ユーザーは独立に制限される
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-2"))
	if w.Code != http.StatusOK {
		t.Errorf("other user status = %d, want 200", w.Code)
	}
	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", got)
	}
}

func TestRateLimiter_SwipeIndependentOfGeneral(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 10,
		SwipeRate: 0.5, SwipeBurst: 1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()
	swipe := rl.SwipeMiddleware()(okHandler())
	general := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	swipe.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("first swipe status = %d", w.Code)
	}
	w = httptest.NewRecorder()
	swipe.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second swipe status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", w.Code)
	}
	if rl.SwipeLimiterCount() != 1 {
		t.Errorf("SwipeLimiterCount = %d, want 1", rl.SwipeLimiterCount())
	}
}

func TestRateLimiter_RequiresUser(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	w := httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRateLimiter_CleanupEvictsIdle(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 1,
		SwipeRate: 1, SwipeBurst: 1,
		CleanupInterval: time.Hour,
	})
	defer rl.Stop()

	rl.general.get("idle", time.Now().Add(-3*time.Hour))
	rl.general.get("active", time.Now())
	rl.cleanup(time.Now())

	if got := rl.GeneralLimiterCount(); got != 1 {
		t.Errorf("GeneralLimiterCount = %d, want 1", got)
	}
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 60)
	if cfg.GeneralRate != 2 || cfg.GeneralBurst != 120 {
		t.Errorf("general = (%v, %d)", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.SwipeRate != 1 || cfg.SwipeBurst != 60 {
		t.Errorf("swipe = (%v, %d)", cfg.SwipeRate, cfg.SwipeBurst)
	}
}
