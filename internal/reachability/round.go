package reachability

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
)

var errUnreachable = errors.New("target unreachable")

// Round is the outcome of one probe round.
type Round struct {
	Attempts  int `json:"attempts" yaml:"attempts"`
	Successes int `json:"successes" yaml:"successes"`
	Failures  int `json:"failures" yaml:"failures"`
}

// OK reports whether any attempt of the round succeeded.
func (r Round) OK() bool {
	return r.Successes > 0
}

// attemptFunc is told the result of each attempt. Returning false ends the
// round early without counting it as failed.
type attemptFunc func(ok bool, elapsed time.Duration) bool

// runRound probes target up to retry+1 times, stopping at the first success.
// Attempts follow each other without delay.
func runRound(ctx context.Context, prober Prober, target string, timeout time.Duration, retry int, onAttempt attemptFunc) Round {
	if retry < 0 {
		retry = 0
	}

	var round Round
	operation := func() error {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		ok := prober.Probe(ctx, target, timeout)
		round.Attempts++
		if ok {
			round.Successes++
		} else {
			round.Failures++
		}

		if onAttempt != nil && !onAttempt(ok, time.Since(start)) {
			return nil
		}
		if ok {
			return nil
		}
		return errUnreachable
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(retry)),
		ctx,
	)
	_ = backoff.Retry(operation, policy)
	return round
}

// ProbeOnce runs a single round against target for diagnostics.
func ProbeOnce(ctx context.Context, prober Prober, target string, timeout time.Duration, retry int) Round {
	return runRound(ctx, prober, target, timeout, retry, nil)
}
