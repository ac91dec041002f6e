package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harveywang/codedesk-backend/internal/settings"
	"github.com/harveywang/codedesk-backend/pkg/config"
	"github.com/harveywang/codedesk-backend/pkg/db"
	"github.com/harveywang/codedesk-backend/pkg/db/models"
	"github.com/harveywang/codedesk-backend/pkg/enums"
	pkgerrors "github.com/harveywang/codedesk-backend/pkg/errors"
	"github.com/harveywang/codedesk-backend/pkg/keymutex"
	"github.com/harveywang/codedesk-backend/pkg/logger"
	"github.com/harveywang/codedesk-backend/pkg/metrics"
	"go.uber.org/multierr"
)

// Service is the recovery engine facade the HTTP layer talks to.
type Service interface {
	ResolveOne(ctx context.Context, originalCodeID int64) (*EligibleRedeem, error)
	Scope(ctx context.Context, params ScopeParams) ([]EligibleRedeem, error)
	Preview(ctx context.Context, params PreviewParams) (*PreviewResult, error)
	Recover(ctx context.Context, originalCodeIDs []int64) ([]RecoverResult, error)
	Logs(ctx context.Context, originalCodeID int64) ([]models.RecoveryLog, error)
}

type serviceImpl struct {
	resolver *Resolver
	selector *Selector
	ledger   Ledger
	repo     Repository
	redeemer Redeemer
	settings settings.Service
	guard    *keymutex.KeyMutex
	metrics  *metrics.RecoveryMetrics
	logg     *logger.Logger
	cfg      config.RecoveryConfig

	now func() time.Time
}

// NewService wires the recovery engine.
func NewService(
	resolver *Resolver,
	selector *Selector,
	ledger Ledger,
	repo Repository,
	redeemer Redeemer,
	settingsSvc settings.Service,
	recoveryMetrics *metrics.RecoveryMetrics,
	logg *logger.Logger,
	cfg config.RecoveryConfig,
) (Service, error) {
	if resolver == nil || selector == nil || ledger == nil || repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "recovery service requires resolver, selector, ledger and repository")
	}
	if redeemer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "recovery service requires a redeemer")
	}
	if settingsSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "recovery service requires the settings service")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "recovery service requires a logger")
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 200
	}
	return &serviceImpl{
		resolver: resolver,
		selector: selector,
		ledger:   ledger,
		repo:     repo,
		redeemer: redeemer,
		settings: settingsSvc,
		guard:    keymutex.New(),
		metrics:  recoveryMetrics,
		logg:     logg,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

func (s *serviceImpl) windowDays(ctx context.Context) (int, error) {
	return s.settings.RecoveryWindowDays(ctx)
}

func (s *serviceImpl) ResolveOne(ctx context.Context, originalCodeID int64) (*EligibleRedeem, error) {
	window, err := s.windowDays(ctx)
	if err != nil {
		return nil, err
	}
	return s.resolver.ResolveOne(ctx, originalCodeID, window)
}

func (s *serviceImpl) Scope(ctx context.Context, params ScopeParams) ([]EligibleRedeem, error) {
	window, err := s.windowDays(ctx)
	if err != nil {
		return nil, err
	}
	return s.resolver.Scope(ctx, params, window)
}

// Preview reports what a one-click run for one source would do. The counts are
// best effort: availability comes from static pool constraints, so preview may
// promise slightly more than execution can place but never less work than the
// scope actually holds.
func (s *serviceImpl) Preview(ctx context.Context, params PreviewParams) (*PreviewResult, error) {
	started := s.now()
	defer func() { s.metrics.ObserveBatch("preview", time.Since(started)) }()

	scope := ScopeParams{Days: params.Days, PendingOnly: true}
	if params.Source != "" {
		source, err := enums.ParseOriginSource(params.Source)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		scope.Source = &source
	}

	items, err := s.Scope(ctx, scope)
	if err != nil {
		return nil, err
	}
	available, err := s.selector.Available(ctx)
	if err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 || limit > s.cfg.MaxBatchSize {
		limit = s.cfg.MaxBatchSize
	}
	n := len(items)
	if int64(n) > available {
		n = int(available)
	}
	if n > limit {
		n = limit
	}

	// Scope is ordered oldest redemption first, so the selection favors the
	// customers who have waited longest.
	selected := make([]int64, 0, n)
	for _, item := range items[:n] {
		selected = append(selected, item.OriginalCodeID)
	}

	return &PreviewResult{
		NeedCount:      len(items),
		AvailableCount: available,
		Selected:       selected,
	}, nil
}

// Recover processes the batch sequentially with per-item isolation: one item's
// business failure becomes its own result row and never aborts the rest.
// Duplicate ids are processed once; later occurrences echo the first outcome
// so the response carries one result per input position.
// Infrastructure failures (store or ledger unreachable) abort the whole call.
func (s *serviceImpl) Recover(ctx context.Context, originalCodeIDs []int64) ([]RecoverResult, error) {
	if len(originalCodeIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "originalCodeIds must not be empty")
	}
	if len(originalCodeIDs) > s.cfg.MaxBatchSize {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("batch size %d exceeds the maximum of %d", len(originalCodeIDs), s.cfg.MaxBatchSize))
	}

	window, err := s.windowDays(ctx)
	if err != nil {
		return nil, err
	}

	started := s.now()
	defer func() { s.metrics.ObserveBatch("recover", time.Since(started)) }()

	results := make([]RecoverResult, 0, len(originalCodeIDs))
	seen := make(map[int64]*RecoverResult, len(originalCodeIDs))
	var itemFailures error

	for _, id := range originalCodeIDs {
		if prior, dup := seen[id]; dup {
			results = append(results, *prior)
			continue
		}

		itemCtx := s.logg.WithOriginalCodeID(ctx, id)
		result, err := s.recoverOne(itemCtx, id, window)
		if err != nil {
			return nil, err
		}
		s.metrics.IncOutcome(string(result.Outcome))
		if result.Outcome == enums.RecoveryOutcomeFailed {
			itemFailures = multierr.Append(itemFailures, fmt.Errorf("code %d: %s", id, result.Message))
		}
		seen[id] = result
		results = append(results, *result)
	}

	if itemFailures != nil {
		s.logg.Warn(s.logg.WithField(ctx, "failures", itemFailures.Error()), "recovery batch completed with failures")
	}
	return results, nil
}

// recoverOne runs the full pipeline for one original code under its key lock:
// re-resolve eligibility, pick a substitute, execute the hand-out, append the
// ledger row. Holding the lock across all four steps is what makes concurrent
// requests for the same code serialize instead of double-spending inventory.
func (s *serviceImpl) recoverOne(ctx context.Context, originalCodeID int64, windowDays int) (*RecoverResult, error) {
	release, err := s.guard.Lock(ctx, originalCodeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire recovery lock")
	}
	defer release()

	item, err := s.resolver.ResolveOne(ctx, originalCodeID, windowDays)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return &RecoverResult{
				OriginalCodeID: originalCodeID,
				Outcome:        enums.RecoveryOutcomeInvalid,
				Message:        typed.Message(),
			}, nil
		}
		return nil, err
	}
	if item == nil {
		return &RecoverResult{
			OriginalCodeID: originalCodeID,
			Outcome:        enums.RecoveryOutcomeInvalid,
			Message:        "redemption is not covered by recovery",
		}, nil
	}

	// A final ledger row settles the code for good, even when the substitute's
	// account has since been banned and the derived state is pending again.
	final, err := s.ledger.LatestFinalByCode(ctx, item.OriginalCodeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read final ledger row")
	}
	if final != nil {
		return &RecoverResult{
			OriginalCodeID: item.OriginalCodeID,
			Outcome:        enums.RecoveryOutcomeAlreadyDone,
			Message:        "a final recovery outcome is already recorded",
		}, nil
	}

	if item.State == enums.RedeemStateDone {
		return s.markAlreadyDone(ctx, item)
	}

	if item.CustomerEmail == "" {
		return s.markFailed(ctx, item, "no customer email on the redemption record")
	}

	candidate, err := s.selector.Pick(ctx, originalCodeID)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return s.markFailed(ctx, item, "no candidate code available in the common pool")
	}

	result, err := s.redeemer.Redeem(ctx, candidate.Code.Code, item.CustomerEmail, models.ChannelCommon)
	if err != nil {
		var redeemErr *RedeemError
		if errors.As(err, &redeemErr) {
			return s.markFailed(ctx, item, redeemErr.Message)
		}
		return s.markFailed(ctx, item, err.Error())
	}

	accountEmail := candidate.Account.Email
	if result != nil && result.AccountEmail != "" {
		accountEmail = result.AccountEmail
	}

	// The upstream bind went through, so the candidate is spent regardless of
	// what happens to the ledger append below.
	if err := s.repo.MarkCodeRedeemed(ctx, candidate.Code.ID, item.CustomerEmail, s.now()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark recovery code redeemed")
	}

	row := &models.RecoveryLog{
		OriginalCodeID:       item.OriginalCodeID,
		Status:               enums.RecoveryStatusSuccess,
		Source:               item.Source,
		RecoveryCode:         &candidate.Code.Code,
		RecoveryAccountEmail: &accountEmail,
	}
	if err := s.ledger.Append(ctx, row); err != nil {
		if db.IsUniqueViolation(err, "") {
			// A final row landed between resolve and append. The hand-out went
			// through, so surface the existing outcome rather than an error.
			s.logg.Warn(ctx, "final ledger row already present after redeem")
			return s.markAlreadyDone(ctx, item)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append success ledger row")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"recovery_code":  candidate.Code.Code,
		"account_email":  accountEmail,
		"origin_source":  item.Source,
		"customer_email": item.CustomerEmail,
	}), "recovery succeeded")

	return &RecoverResult{
		OriginalCodeID: item.OriginalCodeID,
		Outcome:        enums.RecoveryOutcomeSuccess,
		Recovery: &RecoveryInfo{
			Code:         candidate.Code.Code,
			AccountEmail: accountEmail,
			LogID:        row.ID,
		},
	}, nil
}

// markAlreadyDone reports a code whose current account is healthy. When no
// final ledger row exists yet (the account recovered without our help) a
// skipped row is appended so the history explains why nothing happened.
func (s *serviceImpl) markAlreadyDone(ctx context.Context, item *EligibleRedeem) (*RecoverResult, error) {
	final, err := s.ledger.LatestFinalByCode(ctx, item.OriginalCodeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read final ledger row")
	}
	if final == nil {
		row := &models.RecoveryLog{
			OriginalCodeID: item.OriginalCodeID,
			Status:         enums.RecoveryStatusSkipped,
			Source:         item.Source,
		}
		if item.AccountEmail != "" {
			row.RecoveryAccountEmail = &item.AccountEmail
		}
		if err := s.ledger.Append(ctx, row); err != nil && !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append skipped ledger row")
		}
	}
	return &RecoverResult{
		OriginalCodeID: item.OriginalCodeID,
		Outcome:        enums.RecoveryOutcomeAlreadyDone,
		Message:        "code already resolves to a healthy account",
	}, nil
}

func (s *serviceImpl) markFailed(ctx context.Context, item *EligibleRedeem, message string) (*RecoverResult, error) {
	row := &models.RecoveryLog{
		OriginalCodeID: item.OriginalCodeID,
		Status:         enums.RecoveryStatusFailed,
		Source:         item.Source,
		ErrorMessage:   &message,
	}
	if err := s.ledger.Append(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append failed ledger row")
	}
	return &RecoverResult{
		OriginalCodeID: item.OriginalCodeID,
		Outcome:        enums.RecoveryOutcomeFailed,
		Message:        message,
	}, nil
}

func (s *serviceImpl) Logs(ctx context.Context, originalCodeID int64) ([]models.RecoveryLog, error) {
	code, err := s.repo.CodeByID(ctx, originalCodeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load code")
	}
	if code == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no code with id %d", originalCodeID))
	}
	return s.ledger.ListByCode(ctx, originalCodeID)
}
