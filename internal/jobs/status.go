package jobs

import "strings"

// Status represents the lifecycle state of a shorts or dubbing job as
// reported by the processing backend. These values must match the text
// values the backend stores (VideoProcessing.status).
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// ParseStatus normalizes a backend status string. Unknown values are
// returned as-is so callers can still display them.
func ParseStatus(s string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Known reports whether s is one of the four lifecycle states.
func (s Status) Known() bool {
	return s.rank() >= 0
}

// rank orders statuses along the lifecycle; both terminal states share
// the highest rank.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// Regresses reports whether moving from s to next would go backwards in
// the lifecycle. Transitions between the two terminal states are also a
// regression since a terminal job never changes again.
func (s Status) Regresses(next Status) bool {
	if !s.Known() || !next.Known() {
		return false
	}
	if s.IsTerminal() {
		return next != s
	}
	return next.rank() < s.rank()
}
