// Package occ wraps the per-deal optimistic-concurrency retry loop: rerun
// the whole read-compute-write closure on a version conflict, bounded, then
// surface ErrBusy.
package occ

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"dealflow/internal/domain"
)

const (
	maxRetries  = 4
	baseBackoff = 25 * time.Millisecond
)

// Retry reruns fn while it fails with domain.ErrVersionConflict. Any other
// error aborts immediately. Exhausted retries surface domain.ErrBusy.
func Retry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(baseBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if errors.Is(err, domain.ErrVersionConflict) {
		return fmt.Errorf("%w: %v", domain.ErrBusy, err)
	}
	return err
}
