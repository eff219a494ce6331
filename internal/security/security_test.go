package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func serveWith(mw gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/ping", func(c *gin.Context) {
		c.String(200, "pong")
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHeadersMiddleware_SetsBaseline(t *testing.T) {
	w := serveWith(HeadersMiddleware(), httptest.NewRequest("GET", "/ping", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, expected := range want {
		if got := w.Header().Get(header); got != expected {
			t.Errorf("%s = %q, want %q", header, got, expected)
		}
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy header not set")
	}
}

func TestCORSMiddleware_WildcardEchoesOrigin(t *testing.T) {
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Origin", "https://customer-site.example")

	w := serveWith(CORSMiddleware([]string{"*"}), req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://customer-site.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
	// Wildcard mode must not grant credentials.
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("Allow-Credentials must be absent with wildcard origins")
	}
}

func TestCORSMiddleware_AllowsLicenseHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Origin", "https://customer-site.example")

	w := serveWith(CORSMiddleware([]string{"*"}), req)

	allowed := w.Header().Get("Access-Control-Allow-Headers")
	for _, h := range []string{"X-License-Key", "X-Admin-Key", "Authorization"} {
		if !headerListContains(allowed, h) {
			t.Errorf("Allow-Headers %q missing %s", allowed, h)
		}
	}
}

func TestCORSMiddleware_RejectsUnknownOrigin(t *testing.T) {
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")

	w := serveWith(CORSMiddleware([]string{"https://dashboard.example"}), req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Allow-Origin %q for disallowed origin", got)
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	req := httptest.NewRequest("OPTIONS", "/ping", nil)
	req.Header.Set("Origin", "https://customer-site.example")

	w := serveWith(CORSMiddleware([]string{"*"}), req)

	if w.Code != 204 {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
}

func TestValidateEndpointURL(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public https", "https://hooks.example.com/vendord", false},
		{"bad scheme", "ftp://hooks.example.com/", true},
		{"no host", "https:///path", true},
		{"localhost", "http://localhost:8080/hook", true},
		{"loopback literal", "http://127.0.0.1/hook", true},
		{"private literal", "http://10.0.0.5/hook", true},
		{"link local literal", "http://169.254.169.254/latest/meta-data", true},
		{"unspecified", "http://0.0.0.0/", true},
		{"cloud metadata host", "http://metadata.google.internal/", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEndpointURL(tc.url)
			if tc.wantErr && err == nil {
				t.Errorf("ValidateEndpointURL(%q) = nil, want error", tc.url)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("ValidateEndpointURL(%q) = %v", tc.url, err)
			}
		})
	}
}

func headerListContains(list, header string) bool {
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == header {
			return true
		}
	}
	return false
}
