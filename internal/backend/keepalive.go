// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// KeepaliveTimeout bounds a detached lifecycle call including retries.
const KeepaliveTimeout = 10 * time.Second

// Keepalive runs fn detached from ctx's cancellation so it completes even after the
// caller's view is torn down. Transient failures are retried a bounded number of times.
func Keepalive(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), KeepaliveTimeout)
	defer cancel()

	return retry.Do(
		func() error { return fn(ctx) },
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)
}
