package enums

// RecoveryOutcome is the per-item result reported by a batch recover call.
type RecoveryOutcome string

const (
	RecoveryOutcomeSuccess     RecoveryOutcome = "success"
	RecoveryOutcomeFailed      RecoveryOutcome = "failed"
	RecoveryOutcomeAlreadyDone RecoveryOutcome = "already_done"
	RecoveryOutcomeInvalid     RecoveryOutcome = "invalid"
)
