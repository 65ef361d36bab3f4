package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimiter_WindowSlides(t *testing.T) {
	clock := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiterWithNow(3, time.Minute, func() time.Time { return clock })

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d within the limit was denied", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatalf("request over the limit was allowed")
	}

	// mid-window: still denied
	clock = clock.Add(30 * time.Second)
	if rl.Allow("10.0.0.1") {
		t.Fatalf("request mid-window was allowed")
	}

	// past the window: the count resets
	clock = clock.Add(31 * time.Second)
	if !rl.Allow("10.0.0.1") {
		t.Fatalf("request after the window was denied")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	clock := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiterWithNow(1, time.Minute, func() time.Time { return clock })

	if !rl.Allow("10.0.0.1") {
		t.Fatalf("first client denied")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatalf("first client allowed over its limit")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatalf("second client throttled by the first client's traffic")
	}
}

func TestRateLimitMiddleware_Returns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiterWithNow(2, time.Minute, func() time.Time { return clock })

	r := gin.New()
	r.POST("/login", RateLimitMiddleware(rl), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	do := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := do(); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := do(); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := do(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
}
