package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOriginCheckMiddleware(t *testing.T) {
	allowed := []string{"http://localhost:3000"}

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
	}{
		{"GETは常に通過", http.MethodGet, "https://evil.example", http.StatusOK},
		{"許可オリジンのPATCH", http.MethodPatch, "http://localhost:3000", http.StatusOK},
		{"Originなしのpost", http.MethodPost, "", http.StatusOK},
		{"不明オリジンのPATCH", http.MethodPatch, "https://evil.example", http.StatusForbidden},
		{"不明オリジンのPOST", http.MethodPost, "https://evil.example", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewOriginCheckMiddleware(allowed)(okHandler())

			req := httptest.NewRequest(tt.method, "/api/user/basic", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
		})
	}
}
