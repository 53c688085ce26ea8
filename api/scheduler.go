/*
scheduler.go - Automated no-show sweeper

PURPOSE:
  Periodically completes sessions whose window elapsed while they were
  still Scheduled (nobody started them). Without it a no-show would hold
  its booking open forever.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start, then on every tick
  - Delegates to booking.Ledger.SweepNoShows, which settles each session in
    its own transaction; one failing session never blocks the rest

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute, SWEEP_INTERVAL)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewNoShowSweeper(ledger, cfg.SweepInterval, log)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - booking/ledger.go: SweepNoShows, CompleteSession
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/session-engine/booking"
	"github.com/warp/session-engine/logger"
)

// NoShowSweeper handles automated completion of abandoned sessions.
type NoShowSweeper struct {
	Ledger        *booking.Ledger
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	log *logger.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewNoShowSweeper creates a new sweeper. A non-positive interval falls
// back to one minute.
func NewNoShowSweeper(ledger *booking.Ledger, interval time.Duration, log *logger.Logger) *NoShowSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &NoShowSweeper{
		Ledger:        ledger,
		CheckInterval: interval,
		Enabled:       true,
		Now:           time.Now,
		log:           logger.OrDiscard(log).With("component", "sweeper"),
	}
}

// Start begins the sweeper. Calling it twice is a no-op.
func (s *NoShowSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("sweeper disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.log.Info("sweeper started", "interval", s.CheckInterval.String())
}

// Stop stops the sweeper and waits for an in-flight sweep to finish.
func (s *NoShowSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("sweeper stopped")
}

func (s *NoShowSweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow()

	for {
		select {
		case <-ticker.C:
			s.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow performs one sweep and returns how many sessions it completed.
func (s *NoShowSweeper) RunNow() int {
	ctx, cancel := context.WithTimeout(context.Background(), s.CheckInterval)
	defer cancel()

	n, err := s.Ledger.SweepNoShows(ctx, s.Now())
	if err != nil {
		s.log.Error("no-show sweep failed", "completed", n, "error", err)
		return n
	}
	if n > 0 {
		s.log.Info("no-show sweep completed", "completed", n)
	}
	return n
}

// NextRunTime returns roughly when the next scheduled check will occur.
func (s *NoShowSweeper) NextRunTime() time.Time {
	return s.Now().Add(s.CheckInterval)
}
