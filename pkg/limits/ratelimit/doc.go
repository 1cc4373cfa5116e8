// Package ratelimit decides whether a request fits inside every window of
// its policy.
//
// # Overview
//
// A Limiter owns no counters itself. For each request it increments one
// sliding log per window in the counter store, in a single batch, and
// compares the returned counts with the window maxima:
//
//	limiter := ratelimit.NewLimiter(store, ratelimit.Config{StoreTimeout: 50 * time.Millisecond})
//	decision := limiter.Decide(ctx, ratelimit.Request{
//	    Client: id.Client,
//	    Tier:   res.Tier,
//	    Policy: res.Policy,
//	})
//	if !decision.Allowed {
//	    // reject with decision.Violated and decision.RetryAfter
//	}
//
// Every window is incremented, including on requests that end up denied.
// When several windows are violated, the one with the shortest duration is
// reported.
//
// # Failing Open
//
// Store calls are bounded by Config.StoreTimeout. A store that errors or
// times out never blocks traffic: the decision is allowed with FailOpen set,
// a warning is logged (sampled to WarnInterval) and the fail-open counter is
// incremented on every occurrence.
//
// # Thread Safety
//
// Limiter is safe for concurrent use. Atomicity of each increment is
// provided by the store.
package ratelimit
