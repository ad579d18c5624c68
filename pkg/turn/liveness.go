package turn

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultKeepaliveInterval = 5 * time.Minute
	defaultHealthInterval    = time.Minute
	defaultWarnAfter         = 10 * time.Minute
	defaultEscalateAfter     = 15 * time.Minute
)

// LivenessOptions configures a Liveness monitor. Zero values use the
// defaults above.
type LivenessOptions struct {
	KeepaliveInterval time.Duration
	HealthInterval    time.Duration
	WarnAfter         time.Duration
	EscalateAfter     time.Duration
	Logger            *slog.Logger
}

// Liveness keeps a long-running session healthy: it sends silence
// keepalives while everything is idle and warns when server events stop
// arriving.
type Liveness struct {
	opts LivenessOptions
	log  *slog.Logger

	// idle reports whether the system is fully idle: no active capture,
	// turn state idle, push-to-talk key not held.
	idle func() bool
	// keepalive sends a minimal silence frame without committing.
	keepalive func(ctx context.Context) error

	mu        sync.Mutex
	lastEvent time.Time
	warned    bool
	escalated bool
}

// NewLiveness creates a monitor. idle and keepalive must be non-nil.
func NewLiveness(idle func() bool, keepalive func(ctx context.Context) error, opts LivenessOptions) *Liveness {
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = defaultKeepaliveInterval
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = defaultHealthInterval
	}
	if opts.WarnAfter <= 0 {
		opts.WarnAfter = defaultWarnAfter
	}
	if opts.EscalateAfter <= 0 {
		opts.EscalateAfter = defaultEscalateAfter
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Liveness{
		opts:      opts,
		log:       log,
		idle:      idle,
		keepalive: keepalive,
		lastEvent: time.Now(),
	}
}

// Touch records a fresh server event and resets the warning latches.
func (l *Liveness) Touch() {
	l.mu.Lock()
	l.lastEvent = time.Now()
	l.warned = false
	l.escalated = false
	l.mu.Unlock()
}

// Run drives both periodic tasks until ctx is cancelled.
func (l *Liveness) Run(ctx context.Context) error {
	keepalive := time.NewTicker(l.opts.KeepaliveInterval)
	defer keepalive.Stop()
	health := time.NewTicker(l.opts.HealthInterval)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-keepalive.C:
			l.sendKeepalive(ctx)
		case <-health.C:
			l.checkHealth()
		}
	}
}

// sendKeepalive pushes a silence frame through the session when nothing
// else is keeping the transport busy.
func (l *Liveness) sendKeepalive(ctx context.Context) {
	if !l.idle() {
		return
	}
	if err := l.keepalive(ctx); err != nil {
		l.log.Warn("keepalive failed", "error", err)
		return
	}
	l.log.Debug("sent idle keepalive")
}

// checkHealth warns once past WarnAfter and escalates once past
// EscalateAfter; Touch resets both latches.
func (l *Liveness) checkHealth() {
	l.mu.Lock()
	elapsed := time.Since(l.lastEvent)
	warn := elapsed > l.opts.WarnAfter && !l.warned
	escalate := elapsed > l.opts.EscalateAfter && !l.escalated
	if warn {
		l.warned = true
	}
	if escalate {
		l.escalated = true
	}
	l.mu.Unlock()

	if escalate {
		l.log.Error("no server events for an extended period, consider restarting the session",
			"elapsed", elapsed.Round(time.Second))
		return
	}
	if warn {
		l.log.Warn("no server events recently", "elapsed", elapsed.Round(time.Second))
	}
}

// Stale returns how long ago the last server event arrived.
func (l *Liveness) Stale() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Since(l.lastEvent)
}
