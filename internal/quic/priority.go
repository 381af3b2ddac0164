package quic

import "fmt"

// RequestPriority is the caller's abstract priority for a request. Higher
// values are more urgent.
type RequestPriority int

const (
	PriorityIdle RequestPriority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityHighest
)

// String returns the string representation of the RequestPriority.
func (p RequestPriority) String() string {
	switch p {
	case PriorityIdle:
		return "IDLE"
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityHighest:
		return "HIGHEST"
	default:
		return fmt.Sprintf("UNKNOWN_PRIORITY_%d", int(p))
	}
}

// PriorityValue is the transport's priority scheme: 0 is the most urgent and
// larger values are served later, as in SPDY-style prioritization.
type PriorityValue uint8

// ConvertRequestPriority translates the caller's abstract priority into the
// transport scheme. PriorityHighest maps to the most urgent transport value.
func ConvertRequestPriority(p RequestPriority) PriorityValue {
	if p < PriorityIdle {
		p = PriorityIdle
	}
	if p > PriorityHighest {
		p = PriorityHighest
	}
	return PriorityValue(PriorityHighest - p)
}
