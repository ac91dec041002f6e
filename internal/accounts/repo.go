package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/harveywang/codedesk-backend/pkg/db/models"
	"github.com/harveywang/codedesk-backend/pkg/pagination"
	"gorm.io/gorm"
)

// Repository covers the account rows the ban-handling screens touch.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ListBanned(ctx context.Context, search string, cursor *pagination.Cursor, limit int) ([]models.GptAccount, error)
	ByID(ctx context.Context, id int64) (*models.GptAccount, error)
	MarkProcessed(ctx context.Context, id int64) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an accounts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// ListBanned pages through banned, not-yet-processed accounts, newest ban
// first. The cursor walks (created_at, id) descending.
func (r *repositoryImpl) ListBanned(ctx context.Context, search string, cursor *pagination.Cursor, limit int) ([]models.GptAccount, error) {
	query := r.db.WithContext(ctx).
		Model(&models.GptAccount{}).
		Where("banned = ?", true).
		Where("ban_processed = ?", false)

	if trimmed := strings.TrimSpace(search); trimmed != "" {
		query = query.Where("email LIKE ?", "%"+trimmed+"%")
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var accounts []models.GptAccount
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repositoryImpl) ByID(ctx context.Context, id int64) (*models.GptAccount, error) {
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

// MarkProcessed flips the ban-processed flag. The update is idempotent; the
// bool reports whether the account exists at all.
func (r *repositoryImpl) MarkProcessed(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.GptAccount{}).
		Where("id = ?", id).
		Update("ban_processed", true)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	account, err := r.ByID(ctx, id)
	if err != nil {
		return false, err
	}
	return account != nil, nil
}
