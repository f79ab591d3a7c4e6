package security_test

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storelens/avatax-bridge/internal/security"
)

func TestHeadersMiddlewareSetsSecurityHeaders(t *testing.T) {
	t.Parallel()

	h := security.Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true}
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	hdr := rr.Result().Header
	require.Equal(t, "nosniff", hdr.Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", hdr.Get("X-Frame-Options"))
	require.Equal(t, "no-referrer", hdr.Get("Referrer-Policy"))
	require.Equal(t, "max-age=31536000; includeSubDomains", hdr.Get("Strict-Transport-Security"))
}

func TestHeadersMiddlewareSkipsHSTSWithoutTLS(t *testing.T) {
	t.Parallel()

	h := security.Headers{Enable: true, EnableHSTS: true}
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com/", nil))

	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Empty(t, rr.Header().Get("Strict-Transport-Security"))
}

func TestHeadersMiddlewareDisabled(t *testing.T) {
	t.Parallel()

	handler := security.Headers{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com/", nil))

	require.Empty(t, rr.Header().Get("X-Content-Type-Options"))
}
