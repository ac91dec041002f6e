package recovery

import (
	"context"
	"fmt"
	"time"
)

// RedeemResult is the success payload returned by the redemption collaborator.
type RedeemResult struct {
	AccountEmail string
}

// RedeemError is the typed failure raised by the redemption collaborator.
type RedeemError struct {
	StatusCode int
	Message    string
}

func (e *RedeemError) Error() string {
	return fmt.Sprintf("redeem failed (%d): %s", e.StatusCode, e.Message)
}

// Redeemer performs the actual hand-out: binding the code and delivering
// account access to the customer. The engine treats it as opaque and
// retryable; a failure here never blocks a later attempt.
type Redeemer interface {
	Redeem(ctx context.Context, code, email, channel string) (*RedeemResult, error)
}

// DeadlineResolver returns the warranty-window end instant for an original
// code. The selector uses it as the minimum-expiry constraint on substitutes.
type DeadlineResolver interface {
	Deadline(ctx context.Context, originalCodeID int64) (time.Time, error)
}
