package scheduling

import (
	"errors"
	"time"
)

// TickSource delivers the cadence of a periodic job.
type TickSource interface {
	C() <-chan time.Time
	Stop()
}

type tickerSource struct {
	ticker *time.Ticker
}

// NewTicker returns a TickSource backed by time.Ticker.
func NewTicker(interval time.Duration) (TickSource, error) {
	if interval <= 0 {
		return nil, errors.New("scheduling: interval must be positive")
	}
	return &tickerSource{ticker: time.NewTicker(interval)}, nil
}

func (s *tickerSource) C() <-chan time.Time {
	return s.ticker.C
}

func (s *tickerSource) Stop() {
	s.ticker.Stop()
}

// ManualSource is a TickSource driven by explicit Tick calls.
type ManualSource struct {
	ch chan time.Time
}

// NewManualSource constructs a ManualSource.
func NewManualSource() *ManualSource {
	return &ManualSource{ch: make(chan time.Time)}
}

// Tick delivers one tick, blocking until the job loop receives it.
func (s *ManualSource) Tick(at time.Time) {
	s.ch <- at
}

func (s *ManualSource) C() <-chan time.Time {
	return s.ch
}

func (s *ManualSource) Stop() {}
