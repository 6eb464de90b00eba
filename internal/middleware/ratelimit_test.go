package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newLimitedRouter(rl *RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(rl.Middleware())
	router.POST("/v1/chat/completions", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	return router
}

func limitedRequest(router *gin.Engine, token, remoteAddr string) int {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/chat/completions", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_AllowsWithinBudget(t *testing.T) {
	router := newLimitedRouter(NewRateLimiter(10, 10))

	if code := limitedRequest(router, "lg-app-one", "192.168.1.1:12345"); code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, code)
	}
}

func TestRateLimit_BlocksBurstOverflow(t *testing.T) {
	router := newLimitedRouter(NewRateLimiter(1, 2))

	var lastCode int
	for i := 0; i < 5; i++ {
		lastCode = limitedRequest(router, "lg-app-one", "10.0.0.1:12345")
	}
	if lastCode != http.StatusTooManyRequests {
		t.Errorf("expected status %d after burst exceeded, got %d", http.StatusTooManyRequests, lastCode)
	}
}

func TestRateLimit_IndependentPerApp(t *testing.T) {
	router := newLimitedRouter(NewRateLimiter(1, 1))

	// Two apps behind the same address each get their own bucket.
	if code := limitedRequest(router, "lg-app-one", "10.0.0.1:12345"); code != http.StatusOK {
		t.Errorf("app one first request: expected %d, got %d", http.StatusOK, code)
	}
	if code := limitedRequest(router, "lg-app-two", "10.0.0.1:12345"); code != http.StatusOK {
		t.Errorf("app two first request: expected %d, got %d", http.StatusOK, code)
	}
	if code := limitedRequest(router, "lg-app-one", "10.0.0.1:12345"); code != http.StatusTooManyRequests {
		t.Errorf("app one second request: expected %d, got %d", http.StatusTooManyRequests, code)
	}
}

func TestRateLimit_FallsBackToIP(t *testing.T) {
	router := newLimitedRouter(NewRateLimiter(1, 1))

	// No token: the bucket is the client address, independent per IP.
	if code := limitedRequest(router, "", "10.0.0.1:12345"); code != http.StatusOK {
		t.Errorf("IP1 first request: expected %d, got %d", http.StatusOK, code)
	}
	if code := limitedRequest(router, "", "10.0.0.1:12345"); code != http.StatusTooManyRequests {
		t.Errorf("IP1 second request: expected %d, got %d", http.StatusTooManyRequests, code)
	}
	if code := limitedRequest(router, "", "10.0.0.2:12345"); code != http.StatusOK {
		t.Errorf("IP2 first request: expected %d, got %d", http.StatusOK, code)
	}
}
