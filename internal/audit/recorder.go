package audit

import (
	"context"
	"fmt"
	"time"

	"clinicore.org/internal/obs"
)

// Meta carries request-scoped attribution applied to every event
// recorded within the request.
type Meta struct {
	IP        string
	UserAgent string
	RequestID string
}

type metaContextKey struct{}

// WithMeta attaches request attribution to a context.
func WithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaContextKey{}, meta)
}

// MetaFromContext extracts attribution attached by WithMeta.
func MetaFromContext(ctx context.Context) (Meta, bool) {
	meta, ok := ctx.Value(metaContextKey{}).(Meta)
	return meta, ok
}

// Recorder writes events through an Appender, stamping request
// attribution from the context. A Recorder is safe for concurrent use.
type Recorder struct {
	store Appender
	now   func() time.Time
}

// NewRecorder constructs a Recorder over the given Appender.
func NewRecorder(store Appender) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record persists one event. Persistence failure is returned to the
// caller: auditable actions must not complete without their entry.
func (r *Recorder) Record(ctx context.Context, ev Event) (Event, error) {
	if ev.Action == "" {
		return Event{}, ErrActionRequired
	}
	if meta, ok := MetaFromContext(ctx); ok {
		if ev.IP == "" {
			ev.IP = meta.IP
		}
		if ev.UserAgent == "" {
			ev.UserAgent = meta.UserAgent
		}
		if ev.RequestID == "" {
			ev.RequestID = meta.RequestID
		}
	}
	if ev.UASummary == "" {
		ev.UASummary = SummarizeUserAgent(ev.UserAgent)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now().UTC()
	}
	stored, err := r.store.AppendEvent(ctx, ev)
	if err != nil {
		return Event{}, fmt.Errorf("append audit event %s: %w", ev.Action, err)
	}
	obs.ObserveAuditEvent(stored.Action)
	obs.Emit("info", "audit_event", map[string]any{
		"ts":         stored.CreatedAt.Format(time.RFC3339Nano),
		"action":     stored.Action,
		"actor_id":   stored.ActorID,
		"object":     stored.ObjectType,
		"object_id":  stored.ObjectID,
		"request_id": stored.RequestID,
	})
	return stored, nil
}
