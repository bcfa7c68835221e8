package jquery

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Polling selects how a wait re-checks its predicate.
type Polling string

const (
	PollingRAF      Polling = "raf"
	PollingMutation Polling = "mutation"
	PollingInterval Polling = "interval"
)

// OnTimeout selects what a wait does when its timeout elapses.
type OnTimeout string

const (
	OnTimeoutError  OnTimeout = "error"
	OnTimeoutIgnore OnTimeout = "ignore"
)

// ErrWaitTimeout is returned when no element matched before the timeout.
var ErrWaitTimeout = errors.New("jquery: wait timed out")

// WaitOptions configures WaitFor.
type WaitOptions struct {
	Timeout   time.Duration
	Polling   Polling
	Interval  time.Duration
	OnTimeout OnTimeout
}

func (o WaitOptions) withDefaults() WaitOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Polling == "" {
		o.Polling = PollingRAF
	}
	if o.OnTimeout == "" {
		o.OnTimeout = OnTimeoutError
	}
	return o
}

// PollInterval is the delay between two predicate checks when the target
// has no native wait primitive.
func (o WaitOptions) PollInterval() time.Duration {
	switch o.Polling {
	case PollingInterval:
		if o.Interval > 0 {
			return o.Interval
		}
		return 100 * time.Millisecond
	case PollingMutation:
		return 50 * time.Millisecond
	default:
		return 16 * time.Millisecond
	}
}

// WaitFor returns the elements matching selector, waiting up to
// opts.Timeout for at least one to appear. With OnTimeoutIgnore an
// expired wait returns the (empty) last result instead of an error.
func (b *Bridge) WaitFor(ctx context.Context, selector string, opts WaitOptions) ([]Handle, error) {
	opts = opts.withDefaults()
	matches, err := b.Query(selector).Exec(ctx)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return matches, nil
	}

	predicate := b.name + "(" + quoteSingle(selector) + ").toArray().length > 0"
	wctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := b.waitPredicate(wctx, predicate, opts); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			if opts.OnTimeout == OnTimeoutIgnore {
				return matches, nil
			}
			return nil, fmt.Errorf("%w: %s after %s", ErrWaitTimeout, selector, opts.Timeout)
		}
		return nil, err
	}
	return b.Query(selector).Exec(ctx)
}

func (b *Bridge) waitPredicate(ctx context.Context, predicate string, opts WaitOptions) error {
	if w, ok := b.target.(Waiter); ok {
		for {
			err := w.WaitFor(ctx, predicate, opts)
			reason := Classify(err, b.name)
			if reason == nil {
				return err
			}
			if err := b.Inject(ctx, reasonLabel(reason)); err != nil {
				return err
			}
		}
	}

	ticker := time.NewTicker(opts.PollInterval())
	defer ticker.Stop()
	for {
		ok, err := b.evalBool(ctx, predicate)
		if err != nil {
			reason := Classify(err, b.name)
			if reason == nil {
				return err
			}
			if err := b.Inject(ctx, reasonLabel(reason)); err != nil {
				return err
			}
		} else if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Bridge) evalBool(ctx context.Context, code string) (bool, error) {
	h, err := b.target.Evaluate(ctx, code)
	if err != nil {
		return false, err
	}
	out, err := marshal(ctx, h, true)
	if err != nil {
		return false, err
	}
	ok, _ := out.Value.(bool)
	return ok, nil
}
