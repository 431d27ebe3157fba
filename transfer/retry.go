// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"errors"
	"fmt"
)

// permanentError marks a failure that retrying cannot fix: integrity
// violations, protocol violations, local filesystem errors. withRetry
// returns these immediately instead of burning attempts.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }

func (p *permanentError) Unwrap() error { return p.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// withRetry runs op, retrying transient failures with exponential
// backoff: retryBase, then doubling, up to maxAttempts total
// attempts. Permanent errors and context cancellation stop retrying
// immediately. Backoff waits go through the engine's clock so tests
// drive them with a fake.
func (e *Engine) withRetry(ctx context.Context, what string, op func() error) error {
	delay := e.retryBase
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", what, context.Cause(ctx))
		}
		if attempt == e.maxAttempts {
			return fmt.Errorf("%s failed after %d attempts: %w", what, e.maxAttempts, lastErr)
		}

		e.logger.Debug("retrying after transient failure",
			"what", what,
			"attempt", attempt,
			"delay", delay,
			"error", lastErr)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled: %w", what, context.Cause(ctx))
		case <-e.clock.After(delay):
		}
		delay *= 2
	}
}
