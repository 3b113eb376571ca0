package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

var errServerSide = errors.New("backend answered 5xx")

// BaseTransport is the pooled transport shared by the client and the reverse proxies.
// responseTimeout bounds the wait for response headers of every outbound call.
func BaseTransport(responseTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: responseTimeout,
	}
}

func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// a browser hanging up says nothing about backend health
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

type breakerTransport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker counts network errors and 5xx answers against cb. 5xx responses are still returned
// so they can be relayed; an open circuit fails fast with ErrCircuitOpen.
func WithBreaker(next http.RoundTripper, cb *gobreaker.CircuitBreaker) http.RoundTripper {
	if cb == nil {
		return next
	}
	return &breakerTransport{next: next, cb: cb}
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	_, err := t.cb.Execute(func() (interface{}, error) {
		r, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= http.StatusInternalServerError {
			return nil, errServerSide
		}
		return nil, nil
	})
	if resp != nil {
		return resp, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w: %s is %s", ErrUnavailable, ErrCircuitOpen, t.cb.Name(), t.cb.State())
	}
	return nil, err
}
