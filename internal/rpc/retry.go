package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/pkg/config"
)

// newBackOff builds the exponential backoff policy described by cfg.
func newBackOff(ctx context.Context, cfg *config.RetryConfig) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialBackoff.Duration
	exp.MaxInterval = cfg.MaxBackoff.Duration
	exp.Multiplier = cfg.BackoffMultiplier
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := uint64(0)
	if cfg.MaxAttempts > 1 {
		retries = uint64(cfg.MaxAttempts - 1)
	}

	return backoff.WithContext(backoff.WithMaxRetries(exp, retries), ctx)
}

// retryWithBackoff executes a function with exponential backoff retry logic.
// Only transient errors are retried. It respects context cancellation and deadlines.
func retryWithBackoff(ctx context.Context, cfg *config.RetryConfig, operation string, fn func() error) error {
	if cfg == nil {
		// No retry config, execute once
		return fn()
	}

	attempts := 0
	op := func() error {
		attempts++

		err := fn()
		if err != nil && !common.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(error, time.Duration) {
		RPCRetryInc(operation)
	}

	if err := backoff.RetryNotify(op, newBackOff(ctx, cfg), notify); err != nil {
		return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, err)
	}

	return nil
}
