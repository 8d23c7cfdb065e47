package queue

import "time"

// maxBackoff caps the delay between attempts regardless of strategy.
const maxBackoff = time.Hour

// NextBackoff returns the delay before the given attempt is retried.
// attempt is the number of attempts already made (>= 1).
func NextBackoff(b Backoff, attempt int) time.Duration {
	if b.Delay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch b.Kind {
	case BackoffExponential:
		d = b.Delay
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= maxBackoff {
				return maxBackoff
			}
		}
	default:
		// fixed, or unset kind with a delay
		d = b.Delay
	}

	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// resolveAttempts normalizes the attempts option: a job always runs at
// least once.
func resolveAttempts(opts Options) int {
	if opts.Attempts < 1 {
		return 1
	}
	return opts.Attempts
}
