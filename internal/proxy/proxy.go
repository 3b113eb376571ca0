package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
)

type Credentials interface {
	CredentialHeader(cred backend.Credential) (name, value string, err error)
}

type routeKey struct{}

type route struct {
	path       string
	credName   string
	credValue  string
	clientHost string
	clientTLS  bool
}

// Proxy relays requests to the backend API with a server-held credential attached.
// Client cookies and auth headers never reach the backend.
type Proxy struct {
	rp      *httputil.ReverseProxy
	creds   Credentials
	timeout time.Duration
}

func New(baseURL string, transport http.RoundTripper, creds Credentials, timeout time.Duration) (*Proxy, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("proxy: base url must be absolute")
	}

	p := &Proxy{creds: creds, timeout: timeout}
	rp := httputil.NewSingleHostReverseProxy(u)
	rp.Transport = transport

	origDirector := rp.Director
	rp.Director = func(req *http.Request) {
		rt, _ := req.Context().Value(routeKey{}).(route)

		origDirector(req)

		req.Host = u.Host
		escaped := strings.TrimRight(u.EscapedPath(), "/") + backend.APIPrefix + rt.path
		unescaped, err := url.PathUnescape(escaped)
		if err != nil {
			unescaped = escaped
		}
		req.URL.Path = unescaped
		req.URL.RawPath = escaped

		req.Header.Del("Cookie")
		req.Header.Del("Authorization")
		req.Header.Del("X-Api-Key")
		req.Header.Del(echo.HeaderXCSRFToken)
		if rt.credName != "" {
			req.Header.Set(rt.credName, rt.credValue)
		}
		req.Header.Set("User-Agent", backend.UserAgent)

		proto := "http"
		if rt.clientTLS {
			proto = "https"
		}
		req.Header.Set("X-Forwarded-Proto", proto)
		if rt.clientHost != "" {
			req.Header.Set("X-Forwarded-Host", rt.clientHost)
		}
	}
	rp.ModifyResponse = func(resp *http.Response) error {
		resp.Header.Del("Set-Cookie")
		return nil
	}
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		l := logging.FromContext(r.Context()).With("svc", "proxy")
		status := http.StatusBadGateway
		msg := "Failed to reach backend"
		if errors.Is(err, backend.ErrCircuitOpen) {
			status = http.StatusServiceUnavailable
			msg = "Backend temporarily unavailable"
		}
		l.Warn("proxy_failed", "status", status, "error", err)
		writeError(w, status, msg)
	}
	rp.FlushInterval = 100 * time.Millisecond

	p.rp = rp
	return p, nil
}

// Handler proxies to APIPrefix+path(c) using cred.
func (p *Proxy) Handler(cred backend.Credential, path func(c echo.Context) string) echo.HandlerFunc {
	return func(c echo.Context) error {
		l := logging.FromContext(c.Request().Context()).With("handler", "proxy")

		name, value, err := p.creds.CredentialHeader(cred)
		if err != nil {
			l.Error("proxy_misconfigured", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Server configuration error")
		}

		req := c.Request()
		ctx := context.WithValue(req.Context(), routeKey{}, route{
			path:       path(c),
			credName:   name,
			credValue:  value,
			clientHost: req.Host,
			clientTLS:  req.TLS != nil,
		})
		if p.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}

		p.rp.ServeHTTP(c.Response(), req.WithContext(ctx))
		return nil
	}
}

// Path builds an escaped path func from a template such as "/strinova/code/:id".
func Path(tmpl string) func(c echo.Context) string {
	return func(c echo.Context) string {
		segs := strings.Split(tmpl, "/")
		for i, s := range segs {
			if !strings.HasPrefix(s, ":") {
				continue
			}
			v := c.Param(s[1:])
			if uv, err := url.PathUnescape(v); err == nil {
				v = uv
			}
			segs[i] = url.PathEscape(v)
		}
		return strings.Join(segs, "/")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"success":false,"error":"` + msg + `"}`))
}
