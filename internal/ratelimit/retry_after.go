package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

const defaultRetryAfter = 1 * time.Minute

// maxRetryAfter is the longest wait a server can announce. Longer values are
// capped so that the deadline cannot overflow into the past.
const maxRetryAfter = time.Duration(math.MaxInt64/int64(time.Second)) * time.Second

// retryAfterDuration converts seconds to a duration, rounding up to whole
// seconds and capping at maxRetryAfter.
func retryAfterDuration(seconds float64) time.Duration {
	if seconds >= maxRetryAfter.Seconds() {
		return maxRetryAfter
	}
	return time.Duration(math.Ceil(seconds)) * time.Second
}

// parseRetryAfter parses a string s as in the standard Retry-After HTTP header
// and returns a deadline until when requests are rate limited and therefore
// new requests should not be sent. The input may be either a date or a
// non-negative integer number of seconds.
//
// See https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Retry-After.
//
// parseRetryAfter always returns a usable deadline, even in case of an error.
//
// This is the original rate limiting mechanism used by Sentry, superseded by
// the X-Sentry-Rate-Limits response header.
func parseRetryAfter(s string, now time.Time) (Deadline, bool) {
	if s == "" {
		goto invalid
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			goto invalid
		}
		return Deadline(now.Add(retryAfterDuration(float64(n)))), true
	}
	if date, err := http.ParseTime(s); err == nil {
		return Deadline(date), true
	}
invalid:
	return Deadline(now.Add(defaultRetryAfter)), false
}
