package session

import "time"

// Expired reports whether the stored expiry instant has passed. A zero
// expiry means no expiry was ever recorded and fails safe toward
// "needs renewal".
func Expired(expiry, now time.Time) bool {
	if expiry.IsZero() {
		return true
	}

	return !now.Before(expiry)
}

// ExpiringSoon reports whether the stored expiry instant falls within the
// given buffer from now. A zero expiry fails safe to true. The buffer here
// is the proactive-renewal lead time, distinct from the skew buffer the
// store applies at save time.
func ExpiringSoon(expiry, now time.Time, buffer time.Duration) bool {
	if expiry.IsZero() {
		return true
	}

	return expiry.Sub(now) <= buffer
}
