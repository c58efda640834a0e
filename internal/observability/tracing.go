package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog"
)

// CycleID uniquely identifies one Brain ReAct cycle for log correlation.
type CycleID string

// NewCycleID mints a new random cycle identifier.
func NewCycleID() CycleID {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return CycleID(hex.EncodeToString(b))
}

type cycleIDKey struct{}

// ContextWithCycleID stashes id on ctx for downstream log correlation.
func ContextWithCycleID(ctx context.Context, id CycleID) context.Context {
	return context.WithValue(ctx, cycleIDKey{}, id)
}

// CycleIDFromContext retrieves the cycle ID stashed by ContextWithCycleID.
func CycleIDFromContext(ctx context.Context) CycleID {
	if v, ok := ctx.Value(cycleIDKey{}).(CycleID); ok {
		return v
	}
	return ""
}

// CycleTracer logs the stages of a single Brain cycle (Think, Act,
// Observe) with consistent correlation fields. It replaces the gateway's
// distributed span/traceparent machinery with a single-process,
// log-only equivalent — SOMS has no downstream services to propagate a
// trace context to.
type CycleTracer struct {
	log zerolog.Logger
}

// NewCycleTracer creates a tracer that logs under log.
func NewCycleTracer(log zerolog.Logger) *CycleTracer {
	return &CycleTracer{log: log}
}

// Start begins a new cycle trace and returns a context carrying its ID
// plus a function to call when the cycle completes.
func (t *CycleTracer) Start(ctx context.Context) (context.Context, CycleID, func(outcome string)) {
	id := NewCycleID()
	ctx = ContextWithCycleID(ctx, id)
	started := time.Now()
	t.log.Info().Str("cycle_id", string(id)).Msg("cycle started")
	return ctx, id, func(outcome string) {
		t.log.Info().
			Str("cycle_id", string(id)).
			Str("outcome", outcome).
			Dur("duration", time.Since(started)).
			Msg("cycle finished")
	}
}

// Step logs one ReAct iteration (think/act/observe) within a cycle.
func (t *CycleTracer) Step(ctx context.Context, stage string, fields map[string]interface{}) {
	ev := t.log.Info().Str("cycle_id", string(CycleIDFromContext(ctx))).Str("stage", stage)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg("cycle step")
}
