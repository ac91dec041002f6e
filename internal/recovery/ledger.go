package recovery

import (
	"context"
	"errors"

	"github.com/harveywang/codedesk-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Ledger is the append-only recovery history. Rows are inserted and read,
// never updated or deleted; the current state of a code is whatever its
// highest-id row says. A partial unique index enforces at most one
// success/skipped row per original code.
type Ledger interface {
	WithTx(tx *gorm.DB) Ledger

	Append(ctx context.Context, log *models.RecoveryLog) error
	LatestByCode(ctx context.Context, originalCodeID int64) (*models.RecoveryLog, error)
	LatestFinalByCode(ctx context.Context, originalCodeID int64) (*models.RecoveryLog, error)
	ListByCode(ctx context.Context, originalCodeID int64) ([]models.RecoveryLog, error)
	CountByCode(ctx context.Context, originalCodeID int64) (int64, error)
}

type ledgerImpl struct {
	db *gorm.DB
}

// NewLedger returns a ledger bound to the provided database.
func NewLedger(db *gorm.DB) Ledger {
	return &ledgerImpl{db: db}
}

func (l *ledgerImpl) WithTx(tx *gorm.DB) Ledger {
	if tx == nil {
		return l
	}
	return &ledgerImpl{db: tx}
}

func (l *ledgerImpl) Append(ctx context.Context, log *models.RecoveryLog) error {
	return l.db.WithContext(ctx).Create(log).Error
}

func (l *ledgerImpl) LatestByCode(ctx context.Context, originalCodeID int64) (*models.RecoveryLog, error) {
	var log models.RecoveryLog
	err := l.db.WithContext(ctx).
		Where("original_code_id = ?", originalCodeID).
		Order("id DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

func (l *ledgerImpl) LatestFinalByCode(ctx context.Context, originalCodeID int64) (*models.RecoveryLog, error) {
	var log models.RecoveryLog
	err := l.db.WithContext(ctx).
		Where("original_code_id = ? AND status IN ?", originalCodeID, []string{"success", "skipped"}).
		Order("id DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

func (l *ledgerImpl) ListByCode(ctx context.Context, originalCodeID int64) ([]models.RecoveryLog, error) {
	var logs []models.RecoveryLog
	err := l.db.WithContext(ctx).
		Where("original_code_id = ?", originalCodeID).
		Order("id DESC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (l *ledgerImpl) CountByCode(ctx context.Context, originalCodeID int64) (int64, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.RecoveryLog{}).
		Where("original_code_id = ?", originalCodeID).
		Count(&count).Error
	return count, err
}
