package usecase

import "time"

// Decision is the outcome of the retry policy for a failed attempt.
type Decision int

const (
	DecisionRetry Decision = iota
	DecisionDeadLetter
	DecisionDrop
)

func (d Decision) String() string {
	switch d {
	case DecisionRetry:
		return "RETRY"
	case DecisionDeadLetter:
		return "DEAD_LETTER"
	case DecisionDrop:
		return "DROP"
	default:
		return "UNKNOWN"
	}
}

// maxRetryDelay is the SQS DelaySeconds ceiling.
const maxRetryDelay = 15 * time.Minute

// Decide maps the number of failed attempts so far to the next step.
// attempt counts the failure being handled, so the first failure is 1.
func Decide(attempt, maxRetries int, deadLetterConfigured bool) Decision {
	if attempt < maxRetries {
		return DecisionRetry
	}
	if deadLetterConfigured {
		return DecisionDeadLetter
	}
	return DecisionDrop
}

// RetryDelay returns base * 2^(attempt-1), capped at 15 minutes. A zero base
// means immediate redelivery.
func RetryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt < 1 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
