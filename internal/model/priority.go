package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Priority represents the priority level of a task.
type Priority int

const (
	// PriorityNone indicates no priority is set.
	PriorityNone Priority = 0
	// PriorityHigh indicates high priority (raw 1–4).
	PriorityHigh Priority = 1
	// PriorityMedium indicates medium priority (raw 5).
	PriorityMedium Priority = 5
	// PriorityLow indicates low priority (raw 6–9).
	PriorityLow Priority = 9
)

// String returns the human-readable label for the priority.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	default:
		return "None"
	}
}

// NormalizePriority maps any raw priority integer (0–9) to one of the four
// canonical levels. Values outside 0–9 are treated as None.
func NormalizePriority(raw int) Priority {
	switch {
	case raw >= 1 && raw <= 4:
		return PriorityHigh
	case raw == 5:
		return PriorityMedium
	case raw >= 6 && raw <= 9:
		return PriorityLow
	default:
		return PriorityNone
	}
}

// ParsePriority parses a case-insensitive label such as "high". The empty
// string and "none" map to PriorityNone.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return PriorityNone, nil
	case "high":
		return PriorityHigh, nil
	case "medium":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	}
	return PriorityNone, fmt.Errorf("unknown priority %q (want high, medium, low or none)", s)
}

// MarshalText encodes the priority as its lower-case label.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(p.String())), nil
}

// UnmarshalText accepts a label or a raw 0–9 integer.
func (p *Priority) UnmarshalText(b []byte) error {
	if raw, err := strconv.Atoi(string(b)); err == nil {
		*p = NormalizePriority(raw)
		return nil
	}
	parsed, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
