package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/harveywang/codedesk-backend/internal/recovery"
	"github.com/harveywang/codedesk-backend/internal/settings"
	"github.com/harveywang/codedesk-backend/pkg/db/models"
	"github.com/harveywang/codedesk-backend/pkg/enums"
	pkgerrors "github.com/harveywang/codedesk-backend/pkg/errors"
	"github.com/harveywang/codedesk-backend/pkg/logger"
	"github.com/harveywang/codedesk-backend/pkg/pagination"
)

// ListParams filter the banned-accounts screen.
type ListParams struct {
	Search      string
	Days        int
	PendingOnly bool
	Sources     []enums.OriginSource
	Pagination  pagination.Params
}

// BannedAccount is one row on the banned-accounts screen: the account plus the
// recovery workload it represents.
type BannedAccount struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	BanProcessed bool      `json:"banProcessed"`
	CreatedAt    time.Time `json:"createdAt"`

	ImpactedCount int `json:"impactedCount"`
	PendingCount  int `json:"pendingCount"`
	DoneCount     int `json:"doneCount"`
	FailedCount   int `json:"failedCount"`
}

// ListResult is one cursor page of banned accounts.
type ListResult struct {
	Items      []BannedAccount `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// RedeemsParams page a single account's eligible redemptions.
type RedeemsParams struct {
	Pagination pagination.Params
}

// RedeemsResult is one cursor page of an account's redemptions.
type RedeemsResult struct {
	Items      []recovery.EligibleRedeem `json:"items"`
	NextCursor string                    `json:"nextCursor,omitempty"`
}

// Service drives the banned-accounts admin surfaces.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkProcessed(ctx context.Context, accountID int64) error
	Redeems(ctx context.Context, accountID int64, params RedeemsParams) (*RedeemsResult, error)
}

type serviceImpl struct {
	repo     Repository
	resolver *recovery.Resolver
	settings settings.Service
	logg     *logger.Logger
}

// NewService wires the banned-accounts service.
func NewService(repo Repository, resolver *recovery.Resolver, settingsSvc settings.Service, logg *logger.Logger) (Service, error) {
	if repo == nil || resolver == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "accounts service requires repository and resolver")
	}
	if settingsSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "accounts service requires the settings service")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "accounts service requires a logger")
	}
	return &serviceImpl{repo: repo, resolver: resolver, settings: settingsSvc, logg: logg}, nil
}

// List pages banned, unprocessed accounts and annotates each with its recovery
// workload. Workload filters (pendingOnly, sources) apply to the fetched page,
// so a filtered page can come back short; the cursor still advances.
func (s *serviceImpl) List(ctx context.Context, params ListParams) (*ListResult, error) {
	window, err := s.windowDays(ctx, params.Days)
	if err != nil {
		return nil, err
	}

	cursor, err := pagination.ParseCursor(params.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	limit := pagination.NormalizeLimit(params.Pagination.Limit)

	accounts, err := s.repo.ListBanned(ctx, params.Search, cursor, limit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list banned accounts")
	}

	nextCursor := ""
	if len(accounts) > limit {
		accounts = accounts[:limit]
		last := accounts[len(accounts)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	items := make([]BannedAccount, 0, len(accounts))
	for _, account := range accounts {
		row, include, err := s.annotate(ctx, account, window, params)
		if err != nil {
			return nil, err
		}
		if include {
			items = append(items, row)
		}
	}

	return &ListResult{Items: items, NextCursor: nextCursor}, nil
}

func (s *serviceImpl) annotate(ctx context.Context, account models.GptAccount, window int, params ListParams) (BannedAccount, bool, error) {
	redeems, err := s.resolver.EligibleForAccount(ctx, account.Email, window)
	if err != nil {
		return BannedAccount{}, false, err
	}

	row := BannedAccount{
		ID:           account.ID,
		Email:        account.Email,
		BanProcessed: account.BanProcessed,
		CreatedAt:    account.CreatedAt,
	}
	for _, redeem := range redeems {
		if len(params.Sources) > 0 && !containsSource(params.Sources, redeem.Source) {
			continue
		}
		row.ImpactedCount++
		switch redeem.State {
		case enums.RedeemStateDone:
			row.DoneCount++
		case enums.RedeemStateFailed:
			row.FailedCount++
		default:
			row.PendingCount++
		}
	}

	if params.PendingOnly && row.PendingCount == 0 && row.FailedCount == 0 {
		return BannedAccount{}, false, nil
	}
	return row, true, nil
}

func (s *serviceImpl) MarkProcessed(ctx context.Context, accountID int64) error {
	found, err := s.repo.MarkProcessed(ctx, accountID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark account processed")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no account with id %d", accountID))
	}
	s.logg.Info(s.logg.WithField(ctx, "account_id", accountID), "account marked as processed")
	return nil
}

// Redeems lists one account's covered redemptions, newest redemption first,
// cursor-paginated over (redeemed_at, original_code_id). The states are
// derived per request, so the page is never stale.
func (s *serviceImpl) Redeems(ctx context.Context, accountID int64, params RedeemsParams) (*RedeemsResult, error) {
	account, err := s.repo.ByID(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no account with id %d", accountID))
	}

	window, err := s.windowDays(ctx, 0)
	if err != nil {
		return nil, err
	}
	redeems, err := s.resolver.EligibleForAccount(ctx, account.Email, window)
	if err != nil {
		return nil, err
	}

	// Newest first for the drill-down view.
	for i, j := 0, len(redeems)-1; i < j; i, j = i+1, j-1 {
		redeems[i], redeems[j] = redeems[j], redeems[i]
	}

	cursor, err := pagination.ParseCursor(params.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	if cursor != nil {
		for len(redeems) > 0 {
			head := redeems[0]
			if head.RedeemedAt.Before(cursor.CreatedAt) ||
				(head.RedeemedAt.Equal(cursor.CreatedAt) && head.OriginalCodeID < cursor.ID) {
				break
			}
			redeems = redeems[1:]
		}
	}

	limit := pagination.NormalizeLimit(params.Pagination.Limit)
	nextCursor := ""
	if len(redeems) > limit {
		redeems = redeems[:limit]
		last := redeems[len(redeems)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.RedeemedAt, ID: last.OriginalCodeID})
	}

	return &RedeemsResult{Items: redeems, NextCursor: nextCursor}, nil
}

func (s *serviceImpl) windowDays(ctx context.Context, daysOverride int) (int, error) {
	window, err := s.settings.RecoveryWindowDays(ctx)
	if err != nil {
		return 0, err
	}
	if daysOverride > 0 && daysOverride < window {
		window = daysOverride
	}
	return window, nil
}

func containsSource(sources []enums.OriginSource, source enums.OriginSource) bool {
	for _, candidate := range sources {
		if candidate == source {
			return true
		}
	}
	return false
}
