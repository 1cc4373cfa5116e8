package middleware

import (
	"context"
	"time"

	"mercator-hq/sentinel/pkg/limits"
)

type contextKey string

const (
	// startTimeKey stores the request start time.
	startTimeKey contextKey = "start_time"

	// stateKey stores the mutable per-request state shared with outer middleware.
	stateKey contextKey = "request_state"
)

// requestState lets inner middleware report back to Logging, which only
// sees its own request context.
type requestState struct {
	decision *limits.Decision
	client   string
}

func withState(ctx context.Context) (context.Context, *requestState) {
	s := &requestState{}
	return context.WithValue(ctx, stateKey, s), s
}

func stateFrom(ctx context.Context) *requestState {
	s, _ := ctx.Value(stateKey).(*requestState)
	return s
}

// GetDecision returns the admission decision recorded for the request.
func GetDecision(ctx context.Context) *limits.Decision {
	if s := stateFrom(ctx); s != nil {
		return s.decision
	}
	return nil
}

func setDecision(ctx context.Context, d *limits.Decision) context.Context {
	s := stateFrom(ctx)
	if s == nil {
		ctx, s = withState(ctx)
	}
	s.decision = d
	s.client = string(d.Client)
	return ctx
}

// GetStartTime returns the request start time, or the zero time.
func GetStartTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(startTimeKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}
