package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler(capture *http.Request) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			*capture = *r
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := SignToken(secret, TokenClaims{Sub: "user-42", Locale: "id", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var seen http.Request
	handler := Auth(secret)(okHandler(&seen))
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := UserIDFromContext(seen.Context()); got != "user-42" {
		t.Fatalf("user id = %q, want user-42", got)
	}
	if got := LocaleFromContext(seen.Context()); got != "id" {
		t.Fatalf("locale = %q, want id", got)
	}
}

func TestAuthRejections(t *testing.T) {
	secret := "test-secret"
	expired, _ := SignToken(secret, TokenClaims{Sub: "user-1", Exp: time.Now().Add(-time.Minute).Unix()})
	foreign, _ := SignToken("other-secret", TokenClaims{Sub: "user-1", Exp: time.Now().Add(time.Hour).Unix()})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.token"},
		{"expired", "Bearer " + expired},
		{"wrong secret", "Bearer " + foreign},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := Auth(secret)(okHandler(nil))
			req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestLocaleDetection(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"explicit header", map[string]string{"X-Locale": "ID"}, "id"},
		{"accept language", map[string]string{"Accept-Language": "pt-BR,en;q=0.8"}, "pt"},
		{"header wins", map[string]string{"X-Locale": "fr", "Accept-Language": "en-US"}, "fr"},
		{"fallback", nil, "en"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen http.Request
			handler := Locale("en")(okHandler(&seen))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if got := LocaleFromContext(seen.Context()); got != tc.want {
				t.Fatalf("locale = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRateLimitPerUser(t *testing.T) {
	handler := RateLimit(0.001, 2)(okHandler(nil))

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/jobs", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), user))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("user-a") != http.StatusOK || send("user-a") != http.StatusOK {
		t.Fatal("burst requests must pass")
	}
	if send("user-a") != http.StatusTooManyRequests {
		t.Fatal("third request must be limited")
	}
	// Another user has an independent budget.
	if send("user-b") != http.StatusOK {
		t.Fatal("second user must not be limited by the first")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	var seen http.Request
	handler := RequestID(okHandler(&seen))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "rid-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != "rid-123" {
		t.Fatal("inbound request id must be echoed")
	}
	if RequestIDFromContext(seen.Context()) != "rid-123" {
		t.Fatal("request id missing from context")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id must be minted when absent")
	}
}
