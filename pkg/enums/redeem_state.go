package enums

// RedeemState is the derived recovery state of an original redemption.
type RedeemState string

const (
	// RedeemStatePending means the current account is banned and no attempt has failed yet.
	RedeemStatePending RedeemState = "pending"
	// RedeemStateFailed means the current account is banned and the latest attempt failed.
	RedeemStateFailed RedeemState = "failed"
	// RedeemStateDone means the code currently resolves to an unbanned account.
	RedeemStateDone RedeemState = "done"
)
