package worker

import "time"

// backoffTable is the fixed retry delay schedule. It deliberately is not
// unbounded exponential: worst-case latency stays bounded for a flaky
// upstream while short outages are still absorbed.
var backoffTable = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
}

// RetryDelay returns the backoff before the retry with the given zero-based
// index. Indexes past the end of the table clamp to the last entry.
func RetryDelay(retryIndex int) time.Duration {
	if retryIndex < 0 {
		retryIndex = 0
	}
	if retryIndex >= len(backoffTable) {
		retryIndex = len(backoffTable) - 1
	}
	return backoffTable[retryIndex]
}
