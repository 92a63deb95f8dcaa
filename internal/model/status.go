package model

import "fmt"

// UnknownBuildLabel is shown until the first status snapshot is loaded.
const UnknownBuildLabel = "Unknown build"

// SystemStatus is the panel's view of the host.
type SystemStatus struct {
	PatchActive        bool   `json:"patch_active" yaml:"patch_active"`
	OSBuildLabel       string `json:"os_build_label" yaml:"os_build_label"`
	PersistenceEnabled bool   `json:"persistence_enabled" yaml:"persistence_enabled"`
	ExclusionEnabled   bool   `json:"exclusion_enabled" yaml:"exclusion_enabled"`
}

// DefaultStatus returns the degraded status rendered before (or without) a snapshot.
func DefaultStatus() SystemStatus {
	return SystemStatus{OSBuildLabel: UnknownBuildLabel}
}

// ActiveSessions is the session count shown next to the patch toggle.
func ActiveSessions(patchActive bool) int {
	if patchActive {
		return 2
	}
	return 1
}

// Operation identifies a user-triggered operation with its own in-flight guard.
type Operation string

const (
	OpStatus      Operation = "status"
	OpPatch       Operation = "patch"
	OpPersistence Operation = "persistence"
	OpExclusion   Operation = "exclusion"
	OpUpdates     Operation = "updates"
	OpExport      Operation = "export"
)

var toggleOperations = map[Operation]bool{
	OpPatch:       true,
	OpPersistence: true,
	OpExclusion:   true,
}

// IsToggle reports whether op flips a boolean field of SystemStatus.
func IsToggle(op Operation) bool {
	return toggleOperations[op]
}

// ParseToggle resolves a user-supplied toggle name.
func ParseToggle(s string) (Operation, error) {
	op := Operation(s)
	if !IsToggle(op) {
		return "", fmt.Errorf("unknown toggle %q (want patch, persistence or exclusion)", s)
	}
	return op, nil
}

// Field returns the current value of the boolean field behind a toggle.
func (s SystemStatus) Field(op Operation) bool {
	switch op {
	case OpPatch:
		return s.PatchActive
	case OpPersistence:
		return s.PersistenceEnabled
	case OpExclusion:
		return s.ExclusionEnabled
	}
	return false
}

// WithField returns a copy of s with the toggle's field set to v.
func (s SystemStatus) WithField(op Operation, v bool) SystemStatus {
	switch op {
	case OpPatch:
		s.PatchActive = v
	case OpPersistence:
		s.PersistenceEnabled = v
	case OpExclusion:
		s.ExclusionEnabled = v
	}
	return s
}

// Severity classifies an audit log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWait    Severity = "wait"
)

var validSeverities = map[Severity]bool{
	SeverityInfo:    true,
	SeveritySuccess: true,
	SeverityError:   true,
	SeverityWait:    true,
}

func IsValidSeverity(s Severity) bool {
	return validSeverities[s]
}
