package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	protected := Middleware(Config{Enabled: true, Token: "s3cret"})(ok)
	open := Middleware(Config{Enabled: false, Token: "s3cret"})(ok)

	tests := []struct {
		name       string
		handler    http.Handler
		path       string
		header     string
		wantStatus int
	}{
		{"disabled", open, "/api/v1/objects", "", http.StatusOK},
		{"exempt health", protected, "/healthz", "", http.StatusOK},
		{"exempt compute", protected, "/api/v1/ephemeris", "", http.StatusOK},
		{"exempt web host", protected, "/", "", http.StatusOK},
		{"exempt texture", protected, "/textures/day.jpg", "", http.StatusOK},
		{"missing header", protected, "/api/v1/objects", "", http.StatusUnauthorized},
		{"wrong scheme", protected, "/api/v1/objects", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", protected, "/api/v1/objects", "Bearer nope", http.StatusUnauthorized},
		{"valid token", protected, "/api/v1/objects", "Bearer s3cret", http.StatusOK},
		{"stream query token", protected, "/api/v1/stream/frames?token=s3cret", "", http.StatusOK},
		{"stream bad query token", protected, "/api/v1/stream/frames?token=nope", "", http.StatusUnauthorized},
		{"query token outside stream", protected, "/api/v1/objects?token=s3cret", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			tt.handler.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
