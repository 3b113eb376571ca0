package loggingmw

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(ln), &m))
		out = append(out, m)
	}
	return out
}

func TestRequestLogger_PutsLoggerIntoContext(t *testing.T) {
	var buf bytes.Buffer
	base := logging.NewWithWriter(&buf, "info")

	e := echo.New()
	e.Use(RequestLogger(base))
	e.GET("/api/codes", func(c echo.Context) error {
		logging.FromContext(c.Request().Context()).Info("inside")
		c.Set(UserKey, "42")
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/codes", nil)
	req.Header.Set(echo.HeaderXRequestID, "rid-7")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "inside", got[0]["msg"])
	assert.Equal(t, "rid-7", got[0]["request_id"])
	assert.Equal(t, "request completed", got[1]["msg"])
	assert.EqualValues(t, 200, got[1]["status"])
	assert.Equal(t, "42", got[1]["discord_id"])
}

func TestRequestLogger_ErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	base := logging.NewWithWriter(&buf, "info")

	e := echo.New()
	e.Use(RequestLogger(base))
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "nope")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "WARN", got[0]["level"])
	assert.EqualValues(t, 403, got[0]["status"])
}

func TestRequestLogger_SkipPathsAreQuiet(t *testing.T) {
	var buf bytes.Buffer
	base := logging.NewWithWriter(&buf, "info")

	e := echo.New()
	e.Use(RequestLoggerWithConfig(base, Config{SkipPaths: []string{"/health/live"}}))
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Empty(t, strings.TrimSpace(buf.String()))
}
