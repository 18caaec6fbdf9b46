package xmppsession

import "time"

const (
	pingInterval            = 60 * time.Second
	maxUnrespondedPings     = 5
	reconnectBaseDelay      = 30 * time.Second
	maxReconnectDelay       = 300 * time.Second
	maxReconnectAttempts    = 10
	groupchatSilenceTimeout = 300 * time.Second
)

// backoffDelay returns the delay to wait before reconnection attempt n
// (1-indexed) and whether that attempt should be made at all. It implements
// the exponential backoff min(30*2^(n-1), 300) seconds, capped at
// maxReconnectAttempts attempts.
func backoffDelay(attempt int) (time.Duration, bool) {
	if attempt > maxReconnectAttempts {
		return 0, false
	}

	delay := reconnectBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxReconnectDelay {
			delay = maxReconnectDelay
			break
		}
	}
	return delay, true
}
