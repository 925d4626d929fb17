package activities

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// withPlatformRetry absorbs a transient blip in a read-only platform poll
// (get_build_job, get_deployment, get_service) within a single activity
// attempt, backing off between tries. This is deliberately smaller-grained
// than the engine's own activity RetryPolicy: re-running the whole activity
// pays Temporal's scheduling overhead and resets the attempt from scratch,
// where a local retry just re-issues the same read. Never used from
// workflow code — only activities call it, so the backoff's wall-clock
// sleeps never enter replay history.
func withPlatformRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var result T
	err := retry.Do(
		func() error {
			var err error
			result, err = fn()
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	return result, err
}
