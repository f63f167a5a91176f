package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func csrfRequest(header, headerValue, cookieValue string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	if header != "" {
		req.Header[header] = []string{headerValue}
	}
	if cookieValue != "" {
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: cookieValue})
	}
	return req
}

func TestAssertCSRF(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		value      string
		cookie     string
		wantReason string
	}{
		{name: "header matches cookie with metadata", header: "X-Csrf-Token", value: "T", cookie: "T|meta"},
		{name: "cookie without metadata", header: "X-Csrf-Token", value: "T", cookie: "T"},
		{name: "lowercase header key", header: "x-csrf-token", value: "T", cookie: "T|meta"},
		{name: "mixed case header key", header: "X-CSRF-Token", value: "T", cookie: "T|m"},
		{name: "xsrf header", header: "X-Xsrf-Token", value: "T", cookie: "T|m"},
		{name: "metadata containing separators", header: "X-Csrf-Token", value: "T", cookie: "T|a|b"},
		{name: "percent-encoded separator", header: "X-Csrf-Token", value: "T", cookie: "T%7Cmeta"},
		{name: "lowercase percent-encoded separator", header: "X-Csrf-Token", value: "T", cookie: "T%7cmeta"},
		{name: "malformed escape kept raw", header: "X-Csrf-Token", value: "T%zz", cookie: "T%zz|meta"},
		{name: "encoded token mismatch", header: "X-Csrf-Token", value: "T", cookie: "U%7Cmeta", wantReason: "mismatch"},
		{name: "different tokens", header: "X-Csrf-Token", value: "T1", cookie: "T2|meta", wantReason: "mismatch"},
		{name: "header includes metadata", header: "X-Csrf-Token", value: "T|meta", cookie: "T|meta", wantReason: "mismatch"},
		{name: "missing cookie", header: "X-Csrf-Token", value: "T", wantReason: "missing_cookie"},
		{name: "empty cookie token", header: "X-Csrf-Token", value: "T", cookie: "|meta", wantReason: "missing_cookie"},
		{name: "missing header", cookie: "T|meta", wantReason: "missing_header"},
		{name: "empty header", header: "X-Csrf-Token", value: "", cookie: "T|meta", wantReason: "missing_header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AssertCSRF(csrfRequest(tt.header, tt.value, tt.cookie))
			if tt.wantReason == "" {
				assert.NoError(t, err)
				return
			}
			var csrfErr *CSRFError
			require.ErrorAs(t, err, &csrfErr)
			assert.Equal(t, http.StatusForbidden, csrfErr.Status)
			assert.Equal(t, "CSRF validation failed", csrfErr.Message)
			assert.Equal(t, tt.wantReason, csrfErr.Reason())
		})
	}
}

func newCSRFRouter(guard *CSRFGuard) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/auth/csrf", guard.HandleToken)
	protected := router.Group("/api", guard.Verify())
	protected.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	protected.POST("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return router
}

func TestCSRFGuardVerify(t *testing.T) {
	router := newCSRFRouter(NewCSRFGuard(CSRFOptions{Secret: "s"}))

	t.Run("safe method passes without tokens", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("post without tokens is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ping", nil))
		require.Equal(t, http.StatusForbidden, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "CSRF_INVALID", body["code"])
		assert.Equal(t, "CSRF validation failed", body["message"])
	})

	t.Run("post with matching tokens passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/ping", nil)
		req.Header.Set("X-CSRF-Token", "abc")
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "abc|whatever"})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestCSRFGuardIssue(t *testing.T) {
	guard := NewCSRFGuard(CSRFOptions{Secret: "secret"})
	router := newCSRFRouter(guard)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	token := body["csrfToken"]
	require.Len(t, token, csrfTokenBytes*2)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	issued := cookies[0]
	assert.Equal(t, CSRFCookieName, issued.Name)
	assert.True(t, issued.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, issued.SameSite)
	assert.Equal(t, token+"|"+guard.metadata(token), issued.Value)

	t.Run("valid cookie is reused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil)
		req.AddCookie(issued)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var again map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
		assert.Equal(t, token, again["csrfToken"])
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("percent-encoded cookie is reused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: url.QueryEscape(issued.Value)})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var again map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
		assert.Equal(t, token, again["csrfToken"])
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("forged metadata is replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "attacker|" + strings.Repeat("0", 64)})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var again map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
		assert.NotEqual(t, "attacker", again["csrfToken"])
		assert.Len(t, rec.Result().Cookies(), 1)
	})

	t.Run("issued pair passes verification", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/ping", nil)
		req.Header.Set("x-csrf-token", token)
		req.AddCookie(issued)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
