package ratelimit

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

var errInvalidXSRLRetryAfter = errors.New("invalid retry-after value")

// parseXSentryRateLimits returns a RateLimits map by parsing an input string in
// the format of the X-Sentry-Rate-Limits header.
//
// Example
//
//	X-Sentry-Rate-Limits: 60:transaction, 2700:default;error;security
//
// This will rate limit transactions for the next 60 seconds and errors for the
// next 2700 seconds.
//
// Limits for unknown categories are ignored.
func parseXSentryRateLimits(s string, now time.Time) Map {
	// https://github.com/getsentry/relay/blob/0424a2e017d193a93918053c90cdae9472d164bf/relay-quotas/src/rate_limit.rs#L88-L96
	m := make(Map, len(categoryLabels))
	for _, limit := range strings.Split(s, ",") {
		limit = strings.TrimSpace(limit)
		if limit == "" {
			continue
		}
		components := strings.Split(limit, ":")
		deadline, err := parseXSRLRetryAfter(strings.TrimSpace(components[0]), now)
		if err != nil {
			deadline = Deadline(now.Add(defaultRetryAfter))
		}
		categories := ""
		if len(components) > 1 {
			categories = strings.TrimSpace(components[1])
		}
		if categories == "" {
			m.Merge(Map{CategoryAll: deadline})
			continue
		}
		for _, label := range strings.Split(categories, ";") {
			label = strings.TrimSpace(label)
			if label == "" {
				continue
			}
			c := ParseCategory(label)
			if c == CategoryUnknown {
				continue
			}
			m.Merge(Map{c: deadline})
		}
	}
	return m
}

// parseXSRLRetryAfter parses a string into a retry-after rate limit deadline.
//
// Valid input is a number, possibly signed and possibly floating-point,
// indicating the number of seconds to wait before sending another request.
// Negative values are treated as invalid. Fractional values are rounded up to
// the next integer.
func parseXSRLRetryAfter(s string, now time.Time) (Deadline, error) {
	// https://github.com/getsentry/relay/blob/0424a2e017d193a93918053c90cdae9472d164bf/relay-quotas/src/rate_limit.rs#L88-L96
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Deadline{}, errInvalidXSRLRetryAfter
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return Deadline{}, errInvalidXSRLRetryAfter
	}
	return Deadline(now.Add(retryAfterDuration(f))), nil
}
