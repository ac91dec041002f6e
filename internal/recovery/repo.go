package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/harveywang/codedesk-backend/pkg/db/models"
	"github.com/harveywang/codedesk-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository exposes the surface the engine needs across codes, accounts and
// the four order tables. Reads only, except MarkCodeRedeemed which records the
// consumption of a handed-out pool code.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CodeByID(ctx context.Context, id int64) (*models.Code, error)
	UsedCodesByAccountEmail(ctx context.Context, email string, since time.Time) ([]models.Code, error)
	UsedCodesSince(ctx context.Context, since time.Time) ([]models.Code, error)

	AccountByID(ctx context.Context, id int64) (*models.GptAccount, error)
	AccountByEmail(ctx context.Context, email string) (*models.GptAccount, error)

	HasPaymentOrder(ctx context.Context, codeID int64, since time.Time) (bool, error)
	HasCreditOrder(ctx context.Context, codeID int64, since time.Time) (bool, error)
	HasXianyuOrder(ctx context.Context, codeID int64, since time.Time) (bool, error)
	HasXhsOrder(ctx context.Context, codeID int64, since time.Time) (bool, error)
	HasAnyOrder(ctx context.Context, codeID int64) (bool, error)

	LatestOrderType(ctx context.Context, codeID int64) (enums.OrderType, bool, error)
	LatestOrderCreatedAt(ctx context.Context, codeID int64) (*time.Time, error)

	PickCandidate(ctx context.Context, minExpiry time.Time, capacity int, startOfToday time.Time) (*Candidate, error)
	CountCandidates(ctx context.Context, minExpiry time.Time, capacity int) (int64, error)
	MarkCodeRedeemed(ctx context.Context, codeID int64, usedBy string, usedAt time.Time) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an engine repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CodeByID(ctx context.Context, id int64) (*models.Code, error) {
	var code models.Code
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &code, nil
}

func (r *repositoryImpl) UsedCodesByAccountEmail(ctx context.Context, email string, since time.Time) ([]models.Code, error) {
	var codes []models.Code
	err := r.db.WithContext(ctx).
		Table("codes").
		Select("codes.*").
		Joins("JOIN gpt_accounts ON gpt_accounts.id = codes.account_id").
		Where("gpt_accounts.email = ?", email).
		Where("codes.is_used = ?", true).
		Where("codes.used_at >= ?", since).
		Order("codes.used_at ASC, codes.id ASC").
		Find(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *repositoryImpl) UsedCodesSince(ctx context.Context, since time.Time) ([]models.Code, error) {
	var codes []models.Code
	err := r.db.WithContext(ctx).
		Where("is_used = ? AND used_at >= ?", true, since).
		Order("used_at ASC, id ASC").
		Find(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *repositoryImpl) AccountByID(ctx context.Context, id int64) (*models.GptAccount, error) {
	var account models.GptAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repositoryImpl) AccountByEmail(ctx context.Context, email string) (*models.GptAccount, error) {
	var account models.GptAccount
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repositoryImpl) HasPaymentOrder(ctx context.Context, codeID int64, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Where("code_id = ? AND created_at >= ? AND status <> ?", codeID, since, models.PaymentOrderStatusRefunded).
		Count(&count).Error
	return count > 0, err
}

func (r *repositoryImpl) HasCreditOrder(ctx context.Context, codeID int64, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CreditOrder{}).
		Where("code_id = ? AND created_at >= ? AND status <> ?", codeID, since, models.CreditOrderStatusRefunded).
		Count(&count).Error
	return count > 0, err
}

func (r *repositoryImpl) HasXianyuOrder(ctx context.Context, codeID int64, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.XianyuOrder{}).
		Where("code_id = ? AND created_at >= ? AND status <> ?", codeID, since, models.XianyuOrderStatusCancelled).
		Count(&count).Error
	return count > 0, err
}

func (r *repositoryImpl) HasXhsOrder(ctx context.Context, codeID int64, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.XhsOrder{}).
		Where("code_id = ? AND created_at >= ? AND status <> ?", codeID, since, models.XhsOrderStatusCancelled).
		Count(&count).Error
	return count > 0, err
}

// HasAnyOrder reports whether any order table references the code at all,
// regardless of age or refund state. It gates the manual classification: a
// redemption with an out-of-window order is a stale sale, not a manual one.
func (r *repositoryImpl) HasAnyOrder(ctx context.Context, codeID int64) (bool, error) {
	for _, model := range []any{
		&models.PaymentOrder{},
		&models.CreditOrder{},
		&models.XianyuOrder{},
		&models.XhsOrder{},
	} {
		var count int64
		if err := r.db.WithContext(ctx).Model(model).Where("code_id = ?", codeID).Count(&count).Error; err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

type orderTypeRow struct {
	OrderType enums.OrderType
	CreatedAt time.Time
}

// LatestOrderType returns the order type of the newest order referencing the
// code across all four tables, skipping rows with no type recorded.
func (r *repositoryImpl) LatestOrderType(ctx context.Context, codeID int64) (enums.OrderType, bool, error) {
	var latest *orderTypeRow
	for _, table := range []string{"payment_orders", "credit_orders", "xianyu_orders", "xhs_orders"} {
		var row orderTypeRow
		err := r.db.WithContext(ctx).
			Table(table).
			Select("order_type, created_at").
			Where("code_id = ? AND order_type IS NOT NULL AND order_type <> ''", codeID).
			Order("created_at DESC").
			Limit(1).
			Take(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return "", false, err
		}
		if latest == nil || row.CreatedAt.After(latest.CreatedAt) {
			copied := row
			latest = &copied
		}
	}
	if latest == nil {
		return "", false, nil
	}
	return latest.OrderType, true, nil
}

// LatestOrderCreatedAt returns the creation instant of the newest order
// referencing the code, or nil when no order exists.
func (r *repositoryImpl) LatestOrderCreatedAt(ctx context.Context, codeID int64) (*time.Time, error) {
	var latest *time.Time
	for _, table := range []string{"payment_orders", "credit_orders", "xianyu_orders", "xhs_orders"} {
		var row struct{ CreatedAt time.Time }
		err := r.db.WithContext(ctx).
			Table(table).
			Select("created_at").
			Where("code_id = ?", codeID).
			Order("created_at DESC").
			Limit(1).
			Take(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		if latest == nil || row.CreatedAt.After(*latest) {
			copied := row.CreatedAt
			latest = &copied
		}
	}
	return latest, nil
}

func (r *repositoryImpl) candidateQuery(ctx context.Context, minExpiry time.Time, capacity int) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("codes").
		Select("codes.*").
		Joins("JOIN gpt_accounts ON gpt_accounts.id = codes.account_id").
		Where("codes.channel = ?", models.ChannelCommon).
		Where("codes.is_used = ?", false).
		Where("codes.reserved_entry_id IS NULL").
		Where("codes.reserved_order_id IS NULL").
		Where("codes.reserved_uid IS NULL").
		Where("gpt_accounts.open = ?", true).
		Where("gpt_accounts.banned = ?", false).
		Where("gpt_accounts.access_token IS NOT NULL AND gpt_accounts.access_token <> ''").
		Where("gpt_accounts.provider_account_id IS NOT NULL AND gpt_accounts.provider_account_id <> ''").
		Where("gpt_accounts.token_expires_at IS NOT NULL AND gpt_accounts.token_expires_at >= ?", minExpiry).
		Where("gpt_accounts.user_count + gpt_accounts.invite_count < ?", capacity)
}

// PickCandidate returns at most one substitute. Codes created before today are
// preferred so same-day fresh inventory is not starved; within each bucket the
// oldest code wins, keeping allocation deterministic.
func (r *repositoryImpl) PickCandidate(ctx context.Context, minExpiry time.Time, capacity int, startOfToday time.Time) (*Candidate, error) {
	pick := func(sameDay bool) (*models.Code, error) {
		query := r.candidateQuery(ctx, minExpiry, capacity)
		if sameDay {
			query = query.Where("codes.created_at >= ?", startOfToday)
		} else {
			query = query.Where("codes.created_at < ?", startOfToday)
		}
		var code models.Code
		err := query.Order("codes.created_at ASC, codes.id ASC").Limit(1).Take(&code).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return &code, nil
	}

	code, err := pick(false)
	if err != nil {
		return nil, err
	}
	if code == nil {
		code, err = pick(true)
		if err != nil || code == nil {
			return nil, err
		}
	}

	if code.AccountID == nil {
		return nil, nil
	}
	account, err := r.AccountByID(ctx, *code.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}
	return &Candidate{Code: *code, Account: *account}, nil
}

// CountCandidates is the fast, best-effort inventory estimate used by preview.
// It applies the static pool constraints only; the per-order deadline check at
// execution time can still reject a candidate, so this may overstate but never
// understates availability.
func (r *repositoryImpl) CountCandidates(ctx context.Context, minExpiry time.Time, capacity int) (int64, error) {
	var count int64
	// Count over a single join column; counting the row-expanding codes.*
	// select is not portable across drivers.
	err := r.candidateQuery(ctx, minExpiry, capacity).Select("codes.id").Count(&count).Error
	return count, err
}

// MarkCodeRedeemed consumes a handed-out pool code: it leaves the candidate
// pool and becomes a used redemption eligible for its own recovery cycle.
func (r *repositoryImpl) MarkCodeRedeemed(ctx context.Context, codeID int64, usedBy string, usedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Code{}).
		Where("id = ?", codeID).
		Updates(map[string]any{
			"is_used": true,
			"used_by": usedBy,
			"used_at": usedAt,
		}).Error
}
