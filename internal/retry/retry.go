// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package retry runs upstream calls under a bounded exponential backoff with
// jitter. Only errors classified as retryable are attempted again.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	Jitter          float64       `mapstructure:"jitter"`
}

// DefaultPolicy returns 4 attempts starting at 500ms, doubling up to 8s with
// 50% randomization.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		Multiplier:      2,
		Jitter:          0.5,
	}
}

// Notifier is called before each retry with the failed attempt number.
type Notifier func(attempt int, err error, wait time.Duration)

// Call describes one retried operation.
type Call struct {
	// Stage labels log lines and the error stage field.
	Stage string
	// Exhausted is the code returned when every attempt failed with a
	// retryable error. Empty keeps the last error as is.
	Exhausted vwerr.Code
	// Notify is optional.
	Notify Notifier
}

func (p Policy) newBackOff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	if p.Multiplier >= 1 {
		exp.Multiplier = p.Multiplier
	}
	if p.Jitter >= 0 && p.Jitter <= 1 {
		exp.RandomizationFactor = p.Jitter
	}
	// The request deadline bounds elapsed time.
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Do runs op until it succeeds, fails permanently, the attempt budget is
// spent, or ctx is done.
func (p Policy) Do(ctx context.Context, call Call, op func(ctx context.Context) error) error {
	_, err := Value(ctx, p, call, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, call Call, op func(ctx context.Context) (T, error)) (T, error) {
	var (
		result   T
		attempts int
		lastErr  error
	)

	operation := func() error {
		attempts++
		v, err := op(ctx)
		if err == nil {
			result = v
			return nil
		}
		lastErr = err
		if !vwerr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		slog.Warn("retrying upstream call",
			"stage", call.Stage,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
		if call.Notify != nil {
			call.Notify(attempts, err, wait)
		}
	}

	err := backoff.RetryNotify(operation, p.newBackOff(ctx), notify)
	if err == nil {
		return result, nil
	}

	var zero T
	if ctx.Err() != nil {
		if lastErr != nil {
			return zero, vwerr.With(lastErr, vwerr.Field("attempts", attempts))
		}
		return zero, err
	}
	if !vwerr.IsRetryable(err) || call.Exhausted == "" {
		return zero, err
	}
	return zero, vwerr.Recode(err, call.Exhausted, "retries exhausted",
		vwerr.Field("attempts", attempts),
		vwerr.FieldStage(call.Stage),
		vwerr.FieldRetryable(false),
	)
}
