package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

const testJWTSecret = "storefront-test-secret"

func signedToken(t *testing.T, secret, userID, role string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(expiresIn).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// Feature: storefront, Property 17: Protected endpoints reject missing tokens
// Validates: Requirements 3.1
func TestProperty_MissingTokenRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("requests without an Authorization header get 401", prop.ForAll(
		func(pathSuffix string, method string) bool {
			handler := AuthMiddleware(testJWTSecret, zap.NewNop())(okHandler())

			req := httptest.NewRequest(method, "/api/"+pathSuffix, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Logf("FAIL: %s /api/%s without a token got %d", method, pathSuffix, w.Code)
				return false
			}
			return true
		},
		gen.RegexMatch(`[a-z]{1,12}`),
		gen.OneConstOf("GET", "POST", "PUT", "DELETE"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: storefront, Property 18: Expired tokens are rejected
// Validates: Requirements 3.2
func TestProperty_ExpiredTokenRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("expired tokens get 401", prop.ForAll(
		func(userID string, role string) bool {
			handler := AuthMiddleware(testJWTSecret, zap.NewNop())(okHandler())
			token := signedToken(t, testJWTSecret, userID, role, -time.Hour)

			req := httptest.NewRequest("GET", "/api/orders", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Logf("FAIL: expired token for user %q got %d", userID, w.Code)
				return false
			}
			return true
		},
		gen.AnyString(),
		gen.OneConstOf("user", "admin"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: storefront, Property 19: Valid tokens reach the handler with identity
// Validates: Requirements 3.3
func TestProperty_ValidTokenCarriesIdentity(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("valid tokens pass through and populate the context", prop.ForAll(
		func(userID string, role string) bool {
			token := signedToken(t, testJWTSecret, userID, role, time.Hour)

			handlerCalled := false
			handler := AuthMiddleware(testJWTSecret, zap.NewNop())(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					handlerCalled = true

					ctxUserID, ok1 := GetUserID(r.Context())
					ctxRole, ok2 := GetUserRole(r.Context())
					if !ok1 || !ok2 || ctxUserID != userID || ctxRole != role {
						w.WriteHeader(http.StatusInternalServerError)
						return
					}
					w.WriteHeader(http.StatusOK)
				}))

			req := httptest.NewRequest("GET", "/api/orders", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if !handlerCalled || w.Code != http.StatusOK {
				t.Logf("FAIL: valid token for user %q got %d (handler called: %v)", userID, w.Code, handlerCalled)
				return false
			}
			return true
		},
		gen.AnyString(),
		gen.OneConstOf("user", "admin"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_MalformedTokenRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("garbage tokens get 401", prop.ForAll(
		func(invalidToken string) bool {
			handler := AuthMiddleware(testJWTSecret, zap.NewNop())(okHandler())

			req := httptest.NewRequest("GET", "/api/orders", nil)
			req.Header.Set("Authorization", "Bearer "+invalidToken)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			return w.Code == http.StatusUnauthorized
		},
		gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_MissingBearerPrefixRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("headers without the Bearer prefix get 401", prop.ForAll(
		func(userID string) bool {
			handler := AuthMiddleware(testJWTSecret, zap.NewNop())(okHandler())

			// A perfectly good token, sent without the Bearer scheme
			req := httptest.NewRequest("GET", "/api/orders", nil)
			req.Header.Set("Authorization", signedToken(t, testJWTSecret, userID, "user", time.Hour))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			return w.Code == http.StatusUnauthorized
		},
		gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
