package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PollBackoff paces a consumer's receive loop after broker errors. It has
// no elapsed-time cap since the loop retries for the life of the process;
// the caller resets it on the first successful receive.
func PollBackoff(initialInterval, maxInterval time.Duration) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialInterval
	exp.MaxInterval = maxInterval
	exp.Multiplier = 2.0
	exp.MaxElapsedTime = 0
	return exp
}
