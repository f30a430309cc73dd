package ratelimit

import (
	"golang.org/x/text/cases"
)

// Category classifies a telemetry payload for rate limiting and client
// reports.
//
// Categories are not the same as envelope item types. For details see
// https://develop.sentry.dev/sdk/rate-limiting/#definitions and
// https://develop.sentry.dev/sdk/client-reports/#envelope-item-payload.
type Category uint

// The ordinal of each category indexes categoryLabels and must never change.
const (
	CategoryAll Category = iota // special category that applies to all payloads
	CategoryDefault
	CategoryError
	CategorySession
	CategoryTransaction
	CategoryAttachment
	CategoryUserFeedback
	CategoryUnknown
)

// categoryLabels holds the wire label of every category, indexed by ordinal.
var categoryLabels = [...]string{
	CategoryAll:          "", // empty on purpose
	CategoryDefault:      "default",
	CategoryError:        "error",
	CategorySession:      "session",
	CategoryTransaction:  "transaction",
	CategoryAttachment:   "attachment",
	CategoryUserFeedback: "user_report",
	// The relay keys off this exact token, do not correct the spelling.
	CategoryUnknown: "unkown",
}

var categoryNames = [...]string{
	CategoryAll:          "CategoryAll",
	CategoryDefault:      "CategoryDefault",
	CategoryError:        "CategoryError",
	CategorySession:      "CategorySession",
	CategoryTransaction:  "CategoryTransaction",
	CategoryAttachment:   "CategoryAttachment",
	CategoryUserFeedback: "CategoryUserFeedback",
	CategoryUnknown:      "CategoryUnknown",
}

// Categories returns every known category in ordinal order.
func Categories() []Category {
	cs := make([]Category, len(categoryLabels))
	for i := range categoryLabels {
		cs[i] = Category(i)
	}
	return cs
}

// Label returns the lowercase label used on the wire, e.g. in rate limit
// headers and client report payloads.
func (c Category) Label() string {
	if c > CategoryUnknown {
		return categoryLabels[CategoryUnknown]
	}
	return categoryLabels[c]
}

// String returns the category name in the form "CategoryError".
func (c Category) String() string {
	if c > CategoryUnknown {
		return categoryNames[CategoryUnknown]
	}
	return categoryNames[c]
}

// MarshalText encodes the category as its wire label.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.Label()), nil
}

// UnmarshalText decodes a wire label. Unrecognized labels decode to
// CategoryUnknown.
func (c *Category) UnmarshalText(text []byte) error {
	*c = ParseCategory(string(text))
	return nil
}

// ParseCategory maps a label received from the server to a Category.
// Matching is case-insensitive. The empty string is CategoryAll, anything
// not recognized is CategoryUnknown.
func ParseCategory(s string) Category {
	folded := cases.Fold().String(s)
	if folded == "unknown" {
		return CategoryUnknown
	}
	for i, label := range categoryLabels {
		if folded == label {
			return Category(i)
		}
	}
	return CategoryUnknown
}

// Priority is the order in which buffered payloads of a category get sent.
type Priority int

const (
	PriorityCritical Priority = iota + 1
	PriorityHigh
	PriorityMedium
	PriorityLow
	PriorityLowest
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	case PriorityLowest:
		return "lowest"
	default:
		return "unknown"
	}
}

// Priority returns the send priority of the category.
func (c Category) Priority() Priority {
	switch c {
	case CategoryError:
		return PriorityCritical
	case CategorySession, CategoryUserFeedback:
		return PriorityHigh
	case CategoryTransaction:
		return PriorityLow
	case CategoryAttachment:
		return PriorityLowest
	default:
		return PriorityMedium
	}
}
