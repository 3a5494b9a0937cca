package runtime

import (
	"context"
	"time"

	"github.com/aionlabs/aion/pkg/logger"
)

const watchdogInterval = 30 * time.Second

// Watchdog restarts the loop goroutine if it dies while the agent is
// neither paused nor shutting down.
type Watchdog struct {
	interval time.Duration
	alive    func() bool
	paused   func() bool
	restart  func()
}

func NewWatchdog(alive, paused func() bool, restart func()) *Watchdog {
	return &Watchdog{
		interval: watchdogInterval,
		alive:    alive,
		paused:   paused,
		restart:  restart,
	}
}

// Run polls until the context ends. Shutdown cancellation stops the
// watchdog before it can resurrect a deliberately stopped loop.
func (w *Watchdog) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if w.alive() || w.paused() {
				continue
			}
			log.Warn("iteration loop died, restarting")
			w.restart()
		}
	}
}
