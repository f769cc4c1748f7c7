package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Feature: storefront, Property 24: Rate limiting per client
// Validates: Requirements 11.1
func TestProperty_RateLimitEnforced(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	properties := gopter.NewProperties(nil)

	run := 0
	properties.Property("exactly the configured number of requests pass per window", prop.ForAll(
		func(limit int, extra int) bool {
			run++
			handler := RateLimitMiddleware(client, RateLimitConfig{
				RequestsPerWindow: limit,
				Window:            time.Second,
				KeyPrefix:         "checkout_burst",
			}, zap.NewNop())(okHandler())

			// Distinct RemoteAddr per run keeps counters independent
			remoteAddr := fmt.Sprintf("10.40.%d.%d:5123", run/256, run%256)

			allowed, blocked := 0, 0
			for i := 0; i < limit+extra; i++ {
				req := httptest.NewRequest("POST", "/api/orders", nil)
				req.RemoteAddr = remoteAddr
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				switch w.Code {
				case http.StatusOK:
					allowed++
				case http.StatusTooManyRequests:
					blocked++
				default:
					t.Logf("FAIL: unexpected status %d", w.Code)
					return false
				}
			}

			if allowed != limit || blocked != extra {
				t.Logf("FAIL: limit %d, sent %d: allowed %d, blocked %d", limit, limit+extra, allowed, blocked)
				return false
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimit_HeadersCountDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	const limit = 3
	handler := RateLimitMiddleware(client, RateLimitConfig{
		RequestsPerWindow: limit,
		Window:            time.Second,
		KeyPrefix:         "browse",
	}, zap.NewNop())(okHandler())

	for i := 0; i < limit; i++ {
		req := httptest.NewRequest("GET", "/api/products", nil)
		req.RemoteAddr = "10.40.7.9:6201"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if got := w.Header().Get("X-RateLimit-Limit"); got != strconv.Itoa(limit) {
			t.Fatalf("Request %d: X-RateLimit-Limit = %q", i+1, got)
		}
		want := strconv.Itoa(limit - i - 1)
		if got := w.Header().Get("X-RateLimit-Remaining"); got != want {
			t.Fatalf("Request %d: X-RateLimit-Remaining = %q, want %q", i+1, got, want)
		}
	}
}

func TestRateLimit_WindowExpiryResetsCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	handler := RateLimitMiddleware(client, RateLimitConfig{
		RequestsPerWindow: 1,
		Window:            time.Second,
		KeyPrefix:         "checkout_burst",
	}, zap.NewNop())(okHandler())

	send := func() int {
		req := httptest.NewRequest("POST", "/api/orders", nil)
		req.RemoteAddr = "10.40.8.14:7733"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(); code != http.StatusOK {
		t.Fatalf("First request got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("Second request got %d, want 429", code)
	}

	mr.FastForward(2 * time.Second)

	if code := send(); code != http.StatusOK {
		t.Fatalf("Request after window expiry got %d, want 200", code)
	}
}

func TestRateLimit_RedisOutageFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	handler := RateLimitMiddleware(client, RateLimitConfig{
		RequestsPerWindow: 1,
		Window:            time.Second,
		KeyPrefix:         "browse",
	}, zap.NewNop())(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/api/products", nil)
		req.RemoteAddr = "10.40.9.2:8190"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Request %d during outage got %d, want 200", i+1, w.Code)
		}
	}
}
