package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/internal/health"
)

func TestSafeNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		next string
		want string
	}{
		{next: "", want: "/"},
		{next: "/codes?mine=1", want: "/codes?mine=1"},
		{next: "//evil.test/x", want: "/"},
		{next: "https://evil.test", want: "/"},
		{next: `/\evil.test`, want: "/"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.next, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, safeNext(tt.next, "/"))
		})
	}
}

func TestUpstream_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{name: "missing auth key", err: backend.ErrMissingAuthKey, code: http.StatusInternalServerError, msg: "Server configuration error"},
		{name: "missing api key", err: fmt.Errorf("call: %w", backend.ErrMissingAPIKey), code: http.StatusInternalServerError, msg: "Server configuration error"},
		{name: "breaker open", err: fmt.Errorf("%w: %w", backend.ErrUnavailable, backend.ErrCircuitOpen), code: http.StatusServiceUnavailable, msg: "Backend temporarily unavailable"},
		{name: "network", err: fmt.Errorf("%w: dial tcp", backend.ErrUnavailable), code: http.StatusBadGateway, msg: "Failed to fetch codes"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

			err := upstream(c, tt.err, "Failed to fetch codes")
			var he *echo.HTTPError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, tt.code, he.Code)
			assert.Equal(t, tt.msg, he.Message)
		})
	}
}

func TestErrorHandler_Envelope(t *testing.T) {
	t.Parallel()

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	ErrorHandler(echo.NewHTTPError(http.StatusForbidden, "Forbidden"), c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Forbidden"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	ErrorHandler(errors.New("boom"), c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal server error"}`, rec.Body.String())
}

func TestHealth_MissingAPIKeyIsConfigError(t *testing.T) {
	t.Parallel()

	api := &API{Gate: health.NewGate(backend.NewClient(backend.Options{BaseURL: "http://127.0.0.1:1"}))}
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/health", nil), httptest.NewRecorder())

	err := api.Health(c)
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusInternalServerError, he.Code)
	assert.Equal(t, "Server configuration error", he.Message)
	assert.True(t, api.Gate.Active())
}
