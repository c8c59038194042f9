package sink

import (
	"context"
	"errors"
	"time"

	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
)

const (
	retryInitialInterval = 200 * time.Millisecond
	retryMultiplier      = 2.0
	retryMaxElapsed      = 30 * time.Second
	retryMaxAttempts     = 5
)

// throttlingCodes are the smithy API error codes AWS SSM and Secrets
// Manager use to signal request throttling, per SPEC_FULL.md §4.9.
var throttlingCodes = map[string]bool{
	"ThrottlingException":        true,
	"TooManyRequestsException":   true,
	"RequestLimitExceeded":       true,
	"ProvisionedThroughputExceededException": true,
}

// isThrottling reports whether err is an AWS API error in the throttling
// class, using smithy-go's structured error interface rather than string
// matching.
func isThrottling(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return throttlingCodes[apiErr.ErrorCode()]
}

// newBackOff builds the retry schedule of SPEC_FULL.md §4.9: 200ms start,
// doubling each attempt, full jitter, capped at 5 attempts or 30s elapsed,
// whichever comes first.
func newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = retryInitialInterval
	eb.Multiplier = retryMultiplier
	eb.RandomizationFactor = 1.0
	eb.MaxElapsedTime = retryMaxElapsed
	eb.Reset()
	return backoff.WithMaxRetries(eb, retryMaxAttempts-1)
}

// withRetry runs op, retrying on throttling errors per the schedule above.
// A non-throttling error is wrapped in backoff.Permanent so it returns
// immediately without consuming further attempts.
func withRetry(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isThrottling(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(wrapped, backoff.WithContext(newBackOff(), ctx))
}
