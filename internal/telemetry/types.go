package telemetry

// OverflowPolicy defines how the ring buffer handles overflow
type OverflowPolicy int

const (
	OverflowPolicyDropOldest OverflowPolicy = iota
	OverflowPolicyDropNewest
)

func (op OverflowPolicy) String() string {
	switch op {
	case OverflowPolicyDropOldest:
		return "drop_oldest"
	case OverflowPolicyDropNewest:
		return "drop_newest"
	default:
		return "unknown"
	}
}

// DropReason tells a dropped-item callback why the item was evicted.
type DropReason string

const (
	DropReasonOldest  DropReason = "buffer_full_drop_oldest"
	DropReasonNewest  DropReason = "buffer_full_drop_newest"
	DropReasonUnknown DropReason = "unknown_overflow_policy"
)
