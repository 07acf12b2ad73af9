package rest

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
)

// DefaultRetryDelay is used when a rate-limit response carries neither a
// usable period nor a Retry-After header.
const DefaultRetryDelay = time.Minute

var periodUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// ParsePeriod converts the period string of a rate-limit response, e.g. "10s",
// "5m", "2h" or "1d", into a delay. A missing or unknown unit suffix is
// treated as minutes.
func ParsePeriod(period string) (time.Duration, error) {
	period = strings.TrimSpace(period)
	if period == "" {
		return 0, errors.New("empty period")
	}

	unit := time.Minute
	magnitude := period

	last := period[len(period)-1]
	if last < '0' || last > '9' {
		magnitude = strings.TrimSpace(period[:len(period)-1])
		if u, ok := periodUnits[last|0x20]; ok {
			unit = u
		}
	}

	v, err := strconv.ParseFloat(magnitude, 64)
	if err != nil {
		return 0, errors.Annotatef(err, "parsing period %q", period)
	}

	if v < 0 {
		return 0, errors.Errorf("negative period %q", period)
	}

	d := v * float64(unit)
	if math.IsInf(d, 0) || math.IsNaN(d) || d >= math.MaxInt64 {
		return 0, errors.Errorf("period %q is too long", period)
	}

	return time.Duration(d), nil
}

// RetryGate is a shared cool-down: while it is installed, every request of
// the owning client waits for it to clear before hitting the network. At most
// one gate is installed at a time.
type RetryGate struct {
	mtx sync.Mutex

	// done is closed when the current gate clears; nil if no gate is
	// installed.
	done  chan struct{}
	until time.Time

	// installs counts gates installed over the lifetime of the RetryGate.
	installs int

	after   func(d time.Duration) <-chan time.Time
	stopped chan struct{}
}

func newRetryGate(after func(d time.Duration) <-chan time.Time) *RetryGate {
	if after == nil {
		after = time.After
	}

	return &RetryGate{
		after:   after,
		stopped: make(chan struct{}),
	}
}

// Install installs a gate which clears after d. If a gate is already
// installed, it's left as is and false is returned: the caller should then
// just wait for the existing gate.
func (g *RetryGate) Install(d time.Duration) bool {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	if g.done != nil {
		return false
	}

	done := make(chan struct{})
	g.done = done
	g.until = time.Now().Add(d)
	g.installs++

	timer := g.after(d)

	go func() {
		select {
		case <-timer:
		case <-g.stopped:
		}

		g.mtx.Lock()
		if g.done == done {
			g.done = nil
			g.until = time.Time{}
		}
		g.mtx.Unlock()

		close(done)
	}()

	return true
}

// Wait blocks until no gate is installed, ctx is done, or the gate is stopped.
func (g *RetryGate) Wait(ctx context.Context) error {
	for {
		g.mtx.Lock()
		done := g.done
		g.mtx.Unlock()

		select {
		case <-g.stopped:
			return errors.Trace(ErrStopped)
		default:
		}

		if done == nil {
			return nil
		}

		select {
		case <-done:
			// Loop again: another gate might have been installed meanwhile.
		case <-g.stopped:
			return errors.Trace(ErrStopped)
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		}
	}
}

// Until returns the moment the current gate clears, or zero time if no gate
// is installed.
func (g *RetryGate) Until() time.Time {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.until
}

func (g *RetryGate) stop() {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	select {
	case <-g.stopped:
	default:
		close(g.stopped)
	}
}
