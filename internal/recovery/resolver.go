package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/harveywang/codedesk-backend/pkg/db/models"
	"github.com/harveywang/codedesk-backend/pkg/enums"
	pkgerrors "github.com/harveywang/codedesk-backend/pkg/errors"
)

// Resolver derives which original redemptions still owe a warranty recovery.
// It only reads; every verdict is recomputed from the code, order and ledger
// tables on demand so no derived state can go stale.
type Resolver struct {
	repo   Repository
	ledger Ledger

	now func() time.Time
}

// NewResolver wires an eligibility resolver.
func NewResolver(repo Repository, ledger Ledger) *Resolver {
	return &Resolver{repo: repo, ledger: ledger, now: time.Now}
}

// ResolveOne recomputes eligibility for a single redemption. It returns
// (nil, nil) when the code exists and was redeemed but is not covered: outside
// the window, sold without warranty, or attributable to no sales channel.
// A missing or never-redeemed code is a NOT_FOUND error.
func (r *Resolver) ResolveOne(ctx context.Context, originalCodeID int64, windowDays int) (*EligibleRedeem, error) {
	code, err := r.repo.CodeByID(ctx, originalCodeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load code")
	}
	if code == nil || !code.IsUsed || code.UsedAt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no redeemed code with id %d", originalCodeID))
	}
	return r.resolveCode(ctx, code, windowDays)
}

// EligibleForAccount lists the covered redemptions tied to one account's
// email, oldest first. This drives the per-account drill-down on the banned
// accounts screen.
func (r *Resolver) EligibleForAccount(ctx context.Context, accountEmail string, windowDays int) ([]EligibleRedeem, error) {
	since := r.windowStart(windowDays)
	codes, err := r.repo.UsedCodesByAccountEmail(ctx, accountEmail, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list redeemed codes for account")
	}
	return r.resolveAll(ctx, codes, windowDays)
}

// Scope lists covered redemptions across the whole window, optionally
// filtered to one origin source and to items still owed.
func (r *Resolver) Scope(ctx context.Context, params ScopeParams, windowDays int) ([]EligibleRedeem, error) {
	days := params.Days
	if days <= 0 || days > windowDays {
		days = windowDays
	}
	codes, err := r.repo.UsedCodesSince(ctx, r.windowStart(days))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list redeemed codes")
	}

	items, err := r.resolveAll(ctx, codes, windowDays)
	if err != nil {
		return nil, err
	}

	filtered := items[:0]
	for _, item := range items {
		if params.Source != nil && item.Source != *params.Source {
			continue
		}
		if params.PendingOnly && item.State == enums.RedeemStateDone {
			continue
		}
		filtered = append(filtered, item)
	}
	return filtered, nil
}

func (r *Resolver) resolveAll(ctx context.Context, codes []models.Code, windowDays int) ([]EligibleRedeem, error) {
	items := make([]EligibleRedeem, 0, len(codes))
	for i := range codes {
		item, err := r.resolveCode(ctx, &codes[i], windowDays)
		if err != nil {
			return nil, err
		}
		if item != nil {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (r *Resolver) resolveCode(ctx context.Context, code *models.Code, windowDays int) (*EligibleRedeem, error) {
	since := r.windowStart(windowDays)
	if code.UsedAt == nil || code.UsedAt.Before(since) {
		return nil, nil
	}

	covered, err := r.hasWarranty(ctx, code)
	if err != nil {
		return nil, err
	}
	if !covered {
		return nil, nil
	}

	source, ok, err := classifyOrigin(ctx, r.repo, code, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "classify origin")
	}
	if !ok {
		return nil, nil
	}

	accountEmail, currentAccount, err := r.currentAccount(ctx, code)
	if err != nil {
		return nil, err
	}

	latest, err := r.ledger.LatestByCode(ctx, code.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read ledger")
	}
	attempts, err := r.ledger.CountByCode(ctx, code.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count ledger rows")
	}

	// An account we cannot load counts as banned: recovery stays owed until
	// someone can prove the customer has working access.
	state := enums.RedeemStatePending
	switch {
	case currentAccount != nil && !currentAccount.Banned:
		state = enums.RedeemStateDone
	case latest != nil && latest.Status == enums.RecoveryStatusFailed:
		state = enums.RedeemStateFailed
	}

	return &EligibleRedeem{
		OriginalCodeID: code.ID,
		Code:           code.Code,
		Source:         source,
		State:          state,
		Attempts:       attempts,
		RedeemedAt:     *code.UsedAt,
		CustomerEmail:  extractEmail(code.UsedBy),
		AccountEmail:   accountEmail,
		LatestLog:      latest,
	}, nil
}

func (r *Resolver) hasWarranty(ctx context.Context, code *models.Code) (bool, error) {
	orderType, found, err := r.repo.LatestOrderType(ctx, code.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read order type")
	}
	if !found {
		orderType = code.OrderType
	}
	return orderType.HasWarranty(), nil
}

// currentAccount resolves the account the code points at today: the latest
// final ledger row wins over the original binding, so a recovered code tracks
// its substitute account.
func (r *Resolver) currentAccount(ctx context.Context, code *models.Code) (string, *models.GptAccount, error) {
	final, err := r.ledger.LatestFinalByCode(ctx, code.ID)
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read final ledger row")
	}
	if final != nil && final.RecoveryAccountEmail != nil && *final.RecoveryAccountEmail != "" {
		email := *final.RecoveryAccountEmail
		account, err := r.repo.AccountByEmail(ctx, email)
		if err != nil {
			return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recovery account")
		}
		return email, account, nil
	}

	if code.AccountID == nil {
		return "", nil, nil
	}
	account, err := r.repo.AccountByID(ctx, *code.AccountID)
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load original account")
	}
	if account == nil {
		return "", nil, nil
	}
	return account.Email, account, nil
}

func (r *Resolver) windowStart(days int) time.Time {
	return r.now().AddDate(0, 0, -days)
}
