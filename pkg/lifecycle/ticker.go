package lifecycle

import (
	"fmt"
	"time"
)

// DefaultStatusInterval is the periodic STATUS publish interval used
// when configuration does not override it, per spec §6.
const DefaultStatusInterval = 300 * time.Second

// MinStatusInterval is the smallest status_interval the configuration
// schema accepts (spec §6, tested at the 29.999/30 boundary in §8).
const MinStatusInterval = 30 * time.Second

// ValidateStatusInterval enforces status_interval >= 30s.
func ValidateStatusInterval(d time.Duration) error {
	if d < MinStatusInterval {
		return fmt.Errorf("status_interval must be >= %s, got %s", MinStatusInterval, d)
	}
	return nil
}

// StatusTicker calls publish on a fixed interval from Start until
// Stop. It does not check lifecycle state itself; pkg/service starts
// it after reaching READY (spec §4.J).
type StatusTicker struct {
	interval time.Duration
	publish  func()
	ticker   *time.Ticker
	stop     chan struct{}
}

// NewStatusTicker builds a ticker that calls publish every interval.
func NewStatusTicker(interval time.Duration, publish func()) *StatusTicker {
	return &StatusTicker{interval: interval, publish: publish, stop: make(chan struct{})}
}

// Start begins ticking in a background goroutine. Call Stop to end it.
func (t *StatusTicker) Start() {
	t.ticker = time.NewTicker(t.interval)
	go func() {
		for {
			select {
			case <-t.ticker.C:
				t.publish()
			case <-t.stop:
				return
			}
		}
	}()
}

// Stop halts the ticker, per spec §4.J's READY→STOPPING transition.
func (t *StatusTicker) Stop() {
	if t.ticker != nil {
		t.ticker.Stop()
	}
	close(t.stop)
}
