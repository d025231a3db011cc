package queue

import "time"

// maxBackoff caps the retry delay so large MaxAttempts values cannot push an
// entry out for weeks.
const maxBackoff = 24 * time.Hour

// Backoff returns the delay before retrying after the given number of failed
// attempts: 2^attempts minutes, capped at 24h.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		return maxBackoff
	}
	d := time.Duration(1<<uint(attempts)) * time.Minute
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
