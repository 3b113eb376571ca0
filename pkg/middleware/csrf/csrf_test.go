package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEcho(cfg Config) *echo.Echo {
	e := echo.New()
	e.Use(Middleware(cfg))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/api/codes", ok)
	e.POST("/api/codes", ok)
	e.GET("/api/auth/callback", ok)
	e.POST("/api/auth/callback", ok)
	return e
}

func TestCSRF_GetIssuesToken(t *testing.T) {
	t.Parallel()

	e := newEcho(DefaultConfig())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/codes", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	token := rec.Header().Get("X-CSRF-Token")
	assert.NotEmpty(t, token)

	var cookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "XSRF-TOKEN" {
			cookie = ck
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, token, cookie.Value)
	assert.False(t, cookie.HttpOnly)
}

func TestCSRF_Post(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		origin string
		header string
		want   int
	}{
		{name: "valid", origin: "http://example.com", header: "tok", want: http.StatusOK},
		{name: "missing header", origin: "http://example.com", header: "", want: http.StatusForbidden},
		{name: "wrong header", origin: "http://example.com", header: "other", want: http.StatusForbidden},
		{name: "cross origin", origin: "http://evil.test", header: "tok", want: http.StatusForbidden},
		{name: "no origin", origin: "", header: "tok", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newEcho(DefaultConfig())
			req := httptest.NewRequest(http.MethodPost, "/api/codes", nil)
			req.Host = "example.com"
			req.AddCookie(&http.Cookie{Name: "XSRF-TOKEN", Value: "tok"})
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.header != "" {
				req.Header.Set("X-CSRF-Token", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCSRF_SkipPrefixes(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SkipPrefixes = []string{"/api/auth/"}
	e := newEcho(cfg)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/callback", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
