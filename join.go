// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// JoinPolicy configures [JoinAll].
type JoinPolicy struct {
	// MinSuccesses is the number of branches that must succeed for the
	// aggregate to succeed. Zero or negative means 1.
	MinSuccesses int

	// MaxParallel caps the branches running at the same time. Zero or
	// negative means no cap.
	MaxParallel int
}

// Branch is the result of one branch of a [JoinAll].
type Branch[B any] struct {
	Value   B
	Err     error
	Elapsed time.Duration
}

// AggregateResult is the result of a [JoinAll].
type AggregateResult[B any] struct {
	// OK is true when at least MinSuccesses branches succeeded.
	OK bool

	// Successes counts the branches without an error.
	Successes int

	// Branches has one entry per operation, in input order, regardless
	// of the aggregate outcome.
	Branches []Branch[B]

	// Elapsed is the wall-clock duration of the join.
	Elapsed time.Duration
}

// Err returns nil when the aggregate succeeded and otherwise an error
// summarizing how many branches failed.
func (r *AggregateResult[B]) Err() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("framewire: %d of %d branches succeeded", r.Successes, len(r.Branches))
}

// NewJoinFunc returns a new [*JoinFunc].
//
// The cfg argument contains the common configuration for framewire operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewJoinFunc[B any](cfg *Config, policy JoinPolicy, logger SLogger) *JoinFunc[B] {
	return &JoinFunc[B]{
		Logger:  logger,
		Policy:  policy,
		TimeNow: cfg.TimeNow,
	}
}

// JoinFunc runs independent operations concurrently and aggregates
// partial success.
//
// Each operation owns its connection and its deadline, so the join
// takes as long as its slowest branch rather than the sum.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type JoinFunc[B any] struct {
	// Logger is the [SLogger] to use.
	//
	// Set by [NewJoinFunc] to the user-provided logger.
	Logger SLogger

	// Policy is the [JoinPolicy] to apply.
	//
	// Set by [NewJoinFunc] to the user-provided policy.
	Policy JoinPolicy

	// TimeNow is the function to get the current time.
	//
	// Set by [NewJoinFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[[]Func[Unit, int], *AggregateResult[int]] = &JoinFunc[int]{}

// Call runs every operation in ops and waits for all of them.
//
// The returned error is [*AggregateResult.Err]. The result is always
// non-nil and carries every branch.
func (op *JoinFunc[B]) Call(ctx context.Context, ops []Func[Unit, B]) (*AggregateResult[B], error) {
	result := op.join(ctx, ops)
	return result, result.Err()
}

func (op *JoinFunc[B]) join(ctx context.Context, ops []Func[Unit, B]) *AggregateResult[B] {
	minSuccesses := max(op.Policy.MinSuccesses, 1)
	t0 := op.TimeNow()
	op.Logger.Info(
		"joinStart",
		slog.Int("branches", len(ops)),
		slog.Int("maxParallel", op.Policy.MaxParallel),
		slog.Int("minSuccesses", minSuccesses),
		slog.Time("t", t0),
	)

	branches := make([]Branch[B], len(ops))
	var group errgroup.Group
	if op.Policy.MaxParallel > 0 {
		group.SetLimit(op.Policy.MaxParallel)
	}
	for idx, fn := range ops {
		group.Go(func() error {
			start := op.TimeNow()
			value, err := fn.Call(ctx, Unit{})
			branches[idx] = Branch[B]{Value: value, Err: err, Elapsed: op.TimeNow().Sub(start)}
			return nil
		})
	}
	group.Wait()

	result := &AggregateResult[B]{Branches: branches, Elapsed: op.TimeNow().Sub(t0)}
	for _, branch := range branches {
		if branch.Err == nil {
			result.Successes++
		}
	}
	result.OK = result.Successes >= minSuccesses

	op.Logger.Info(
		"joinDone",
		slog.Int("branches", len(ops)),
		slog.Bool("ok", result.OK),
		slog.Int("successes", result.Successes),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
	return result
}

// JoinAll runs ops concurrently under policy using a default [*Config].
func JoinAll[B any](ctx context.Context, ops []Func[Unit, B], policy JoinPolicy) *AggregateResult[B] {
	return NewJoinFunc[B](NewConfig(), policy, DefaultSLogger()).join(ctx, ops)
}
