package enums

import "fmt"

// RecoveryStatus is the outcome recorded on a single ledger row.
type RecoveryStatus string

const (
	RecoveryStatusPending RecoveryStatus = "pending"
	RecoveryStatusSuccess RecoveryStatus = "success"
	RecoveryStatusFailed  RecoveryStatus = "failed"
	RecoveryStatusSkipped RecoveryStatus = "skipped"
)

var validRecoveryStatuses = []RecoveryStatus{
	RecoveryStatusPending,
	RecoveryStatusSuccess,
	RecoveryStatusFailed,
	RecoveryStatusSkipped,
}

// IsValid checks whether the given status matches the canonical enum.
func (s RecoveryStatus) IsValid() bool {
	for _, candidate := range validRecoveryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsFinal reports whether the status marks a code as already recovered.
// At most one final row may ever exist per original code.
func (s RecoveryStatus) IsFinal() bool {
	return s == RecoveryStatusSuccess || s == RecoveryStatusSkipped
}

// ParseRecoveryStatus converts raw strings into RecoveryStatus.
func ParseRecoveryStatus(value string) (RecoveryStatus, error) {
	for _, candidate := range validRecoveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid recovery status %q", value)
}
