package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
)

var ErrMaintenance = errors.New("maintenance")

type Prober interface {
	Health(ctx context.Context) (*backend.Response, error)
}

// Report is the outcome of one probe.
type Report struct {
	OK   bool
	Data json.RawMessage
	Err  error
}

type state struct {
	active    bool
	reason    string
	checkedAt time.Time
}

// Gate is the maintenance switch. A failed probe turns it on, a later good probe turns it off,
// and it stays off until a probe fails again.
type Gate struct {
	Prober Prober
	st     atomic.Pointer[state]
}

func NewGate(p Prober) *Gate {
	g := &Gate{Prober: p}
	g.st.Store(&state{})
	return g
}

func (g *Gate) Active() bool {
	s := g.st.Load()
	return s != nil && s.active
}

func (g *Gate) Reason() string {
	if s := g.st.Load(); s != nil {
		return s.reason
	}
	return ""
}

func (g *Gate) CheckedAt() time.Time {
	if s := g.st.Load(); s != nil {
		return s.checkedAt
	}
	return time.Time{}
}

// Observe records a probe outcome and reports whether the gate changed state.
func (g *Gate) Observe(err error) bool {
	next := &state{active: err != nil, checkedAt: time.Now()}
	if err != nil {
		next.reason = err.Error()
	}
	prev := g.st.Swap(next)
	return prev == nil || prev.active != next.active
}

// Check probes the backend once and updates the gate. Non-2xx answers and timeouts count as failures.
func (g *Gate) Check(ctx context.Context) Report {
	l := logging.FromContext(ctx).With("svc", "health.check")

	var rep Report
	resp, err := g.Prober.Health(ctx)
	switch {
	case err != nil:
		rep.Err = err
	case !resp.OK():
		msg := resp.ErrorMessage()
		if msg == "" {
			msg = fmt.Sprintf("backend answered %d", resp.Status)
		}
		rep.Err = fmt.Errorf("%w: %s", ErrMaintenance, msg)
	default:
		rep.OK = true
		if json.Valid(resp.Body) {
			rep.Data = resp.Body
		}
	}

	if g.Observe(rep.Err) {
		if rep.Err != nil {
			l.Warn("maintenance_on", "error", rep.Err)
		} else {
			l.Info("maintenance_off")
		}
	}
	return rep
}

// Monitor re-checks the backend every Interval until ctx is done.
type Monitor struct {
	Gate     *Gate
	Interval time.Duration
}

func (m *Monitor) Run(ctx context.Context) {
	l := logging.FromContext(ctx).With("svc", "health.monitor")
	interval := m.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	l.Info("monitor_started", "interval", interval.String())

	m.Gate.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Info("monitor_stopped")
			return
		case <-t.C:
			m.Gate.Check(ctx)
		}
	}
}
