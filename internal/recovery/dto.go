package recovery

import (
	"time"

	"github.com/harveywang/codedesk-backend/pkg/db/models"
	"github.com/harveywang/codedesk-backend/pkg/enums"
)

// EligibleRedeem is one original redemption that still owes (or has received)
// a warranty-backed recovery.
type EligibleRedeem struct {
	OriginalCodeID int64              `json:"originalCodeId"`
	Code           string             `json:"code"`
	Source         enums.OriginSource `json:"source"`
	State          enums.RedeemState  `json:"state"`
	Attempts       int64              `json:"attempts"`
	RedeemedAt     time.Time          `json:"redeemedAt"`

	// CustomerEmail is extracted from the redeemer identity string and is the
	// address any substitute code is delivered to.
	CustomerEmail string `json:"customerEmail"`
	// AccountEmail is the email of the account the code currently resolves to,
	// following the latest final ledger row.
	AccountEmail string `json:"accountEmail"`

	LatestLog *models.RecoveryLog `json:"latestLog,omitempty"`
}

// ScopeParams bound a batch eligibility resolution.
type ScopeParams struct {
	Source      *enums.OriginSource
	Days        int
	PendingOnly bool
}

// PreviewParams configure a one-click preview run.
type PreviewParams struct {
	Source string
	Days   int
	Limit  int
}

// PreviewResult reports how many recoveries one source could auto-process.
type PreviewResult struct {
	NeedCount      int     `json:"needCount"`
	AvailableCount int64   `json:"availableCount"`
	Selected       []int64 `json:"originalCodeIds"`
}

// RecoveryInfo describes the substitute that was handed out.
type RecoveryInfo struct {
	Code         string `json:"code"`
	AccountEmail string `json:"accountEmail"`
	LogID        int64  `json:"logId"`
}

// RecoverResult is the per-item outcome of a batch recover call.
type RecoverResult struct {
	OriginalCodeID int64                 `json:"originalCodeId"`
	Outcome        enums.RecoveryOutcome `json:"outcome"`
	Message        string                `json:"message,omitempty"`
	Recovery       *RecoveryInfo         `json:"recovery,omitempty"`
}

// Candidate pairs a pool code with its bound account.
type Candidate struct {
	Code    models.Code
	Account models.GptAccount
}
