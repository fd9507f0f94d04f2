package session

import (
	"time"

	"iptv-bridge/internal/logging"
	"iptv-bridge/internal/metrics"
)

// Reaper periodically removes sessions that no client has touched within
// the idle timeout, stopping their encoders and reclaiming cache space.
type Reaper struct {
	registry    *Registry
	interval    time.Duration
	idleTimeout time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewReaper creates a reaper over the given registry.
func NewReaper(registry *Registry, interval, idleTimeout time.Duration) *Reaper {
	return &Reaper{
		registry:    registry,
		interval:    interval,
		idleTimeout: idleTimeout,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start launches the sweep loop in a background goroutine.
func (r *Reaper) Start() {
	logging.Info("Session reaper started (interval=%s idle_timeout=%s)", r.interval, r.idleTimeout)
	go r.loop()
}

// Stop terminates the sweep loop and waits for it to finish.
func (r *Reaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reaper) loop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep removes every session idle for longer than the timeout.
func (r *Reaper) sweep() {
	metrics.ReaperSweepsTotal.Inc()
	metrics.ReaperLastSweepTimestamp.Set(float64(time.Now().Unix()))

	cutoff := time.Now().Add(-r.idleTimeout)
	reaped := 0

	for _, info := range r.registry.List() {
		if info.LastAccess.After(cutoff) {
			continue
		}

		idle := time.Since(info.LastAccess).Round(time.Second)
		logging.Info("Reaping session %s (idle for %s)", info.ID, idle)

		if err := r.registry.Remove(info.ID, "reaped"); err != nil {
			logging.Warn("Failed to reap session %s: %v", info.ID, err)
			metrics.ReaperCleanupErrors.Inc()
			continue
		}
		metrics.ReaperReapedTotal.Inc()
		reaped++
	}

	if reaped > 0 {
		logging.Info("Reaper sweep removed %d session(s), %d remaining", reaped, r.registry.Len())
	} else {
		logging.Debug("Reaper sweep: nothing to remove (%d active)", r.registry.Len())
	}
}
