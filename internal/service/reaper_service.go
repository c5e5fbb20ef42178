package service

import (
	"context"
	"sync"
	"time"

	"gardener-chat-be/internal/pkg/logger"
	"gardener-chat-be/pkg/events"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const reaperModule = "Reaper"

type HeartbeatTracker interface {
	IsExpired(sessionID string, now time.Time, timeout time.Duration) bool
}

// SessionCloser closes the live connection of a removed session, if there is one.
type SessionCloser interface {
	CloseSession(sessionID string)
}

type ReaperOptions struct {
	Interval  time.Duration
	Timeout   time.Duration
	Publisher events.Publisher
	Closer    SessionCloser
	Clock     func() time.Time
}

// ReaperService periodically drops sessions whose heartbeat went silent.
type ReaperService struct {
	sessions   SessionStore
	heartbeats HeartbeatTracker
	logger     logger.ILogger
	opts       ReaperOptions
	reaped     metric.Int64Counter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReaperService(sessions SessionStore, heartbeats HeartbeatTracker, log logger.ILogger, opts ReaperOptions) *ReaperService {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	reaped, _ := otel.Meter("gardener-chat-be/chat").Int64Counter("chat.sessions.reaped",
		metric.WithDescription("Sessions removed for heartbeat expiry"))

	return &ReaperService{
		sessions:   sessions,
		heartbeats: heartbeats,
		logger:     log,
		opts:       opts,
		reaped:     reaped,
	}
}

// Start runs the sweep loop in the background until Stop is called or ctx ends.
func (r *ReaperService) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(r.opts.Interval)
		defer ticker.Stop()

		r.logger.Info(reaperModule, "Session reaper started", map[string]interface{}{
			"interval": r.opts.Interval.String(),
			"timeout":  r.opts.Timeout.String(),
		})
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(r.opts.Clock())
			}
		}
	}(r.done)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (r *ReaperService) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sweep removes every session whose last heartbeat is older than the timeout and
// returns how many were removed.
func (r *ReaperService) Sweep(now time.Time) int {
	removed := 0
	for _, sess := range r.sessions.All() {
		if !r.heartbeats.IsExpired(sess.ID, now, r.opts.Timeout) {
			continue
		}
		// A concurrent teardown may already have taken it.
		if !r.sessions.RemoveSession(sess) {
			continue
		}
		removed++
		publishSessionEvent(r.opts.Publisher, r.logger, events.ChatSessionClosed, sess, events.CloseReasonExpired, now)
		if r.opts.Closer != nil {
			r.opts.Closer.CloseSession(sess.ID)
		}
	}

	if removed > 0 {
		if r.reaped != nil {
			r.reaped.Add(context.Background(), int64(removed))
		}
		r.logger.Info(reaperModule, "Expired sessions removed", map[string]interface{}{"count": removed})
	}
	return removed
}
