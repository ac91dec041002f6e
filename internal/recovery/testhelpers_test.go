package recovery

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/harveywang/codedesk-backend/pkg/config"
	"github.com/harveywang/codedesk-backend/pkg/db/models"
	"github.com/harveywang/codedesk-backend/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newEngineDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(
		&models.Code{},
		&models.GptAccount{},
		&models.PaymentOrder{},
		&models.CreditOrder{},
		&models.XianyuOrder{},
		&models.XhsOrder{},
		&models.RecoveryLog{},
	))
	require.NoError(t, conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_recovery_logs_final
		 ON recovery_logs(original_code_id) WHERE status IN ('success','skipped')`,
	).Error)
	return conn
}

// fakeRedeemer programs per-code outcomes; the default is success with the
// candidate account resolved by the service.
type fakeRedeemer struct {
	failWith map[string]*RedeemError
	calls    []redeemCall
}

type redeemCall struct {
	Code    string
	Email   string
	Channel string
}

func (f *fakeRedeemer) Redeem(_ context.Context, code, email, channel string) (*RedeemResult, error) {
	f.calls = append(f.calls, redeemCall{Code: code, Email: email, Channel: channel})
	if f.failWith != nil {
		if redeemErr, ok := f.failWith[code]; ok {
			return nil, redeemErr
		}
	}
	return &RedeemResult{}, nil
}

// bindOnceRedeemer mimics the upstream contract that a code binds to exactly
// one customer. Safe for concurrent calls.
type bindOnceRedeemer struct {
	mu    sync.Mutex
	bound map[string]string
}

func (f *bindOnceRedeemer) Redeem(_ context.Context, code, email, _ string) (*RedeemResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bound == nil {
		f.bound = make(map[string]string)
	}
	if _, taken := f.bound[code]; taken {
		return nil, &RedeemError{StatusCode: 409, Message: "code already redeemed"}
	}
	f.bound[code] = email
	return &RedeemResult{}, nil
}

func (f *bindOnceRedeemer) boundCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bound)
}

type staticSettings struct {
	days int
}

func (s *staticSettings) RecoveryWindowDays(context.Context) (int, error) { return s.days, nil }
func (s *staticSettings) SetRecoveryWindowDays(_ context.Context, days int) error {
	s.days = days
	return nil
}
func (s *staticSettings) Invalidate() {}

type engineHarness struct {
	db       *gorm.DB
	repo     Repository
	ledger   Ledger
	resolver *Resolver
	selector *Selector
	redeemer *fakeRedeemer
	svc      Service
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()

	conn := newEngineDB(t)
	repo := NewRepository(conn)
	ledger := NewLedger(conn)
	resolver := NewResolver(repo, ledger)

	cfg := config.RecoveryConfig{WindowDays: 30, MaxBatchSize: 200, SeatCapacity: 5, PlanDays: 30}
	selector := NewSelector(repo, NewPlanDeadlineResolver(repo, cfg.PlanDuration()), cfg.SeatCapacity)
	redeemer := &fakeRedeemer{}

	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	svc, err := NewService(resolver, selector, ledger, repo, redeemer, &staticSettings{days: 30}, nil, logg, cfg)
	require.NoError(t, err)

	return &engineHarness{
		db:       conn,
		repo:     repo,
		ledger:   ledger,
		resolver: resolver,
		selector: selector,
		redeemer: redeemer,
		svc:      svc,
	}
}

// newServiceWith builds a service over the harness stores with a different
// upstream executor.
func (h *engineHarness) newServiceWith(t *testing.T, upstream Redeemer) Service {
	t.Helper()
	cfg := config.RecoveryConfig{WindowDays: 30, MaxBatchSize: 200, SeatCapacity: 5, PlanDays: 30}
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	svc, err := NewService(h.resolver, h.selector, h.ledger, h.repo, upstream, &staticSettings{days: 30}, nil, logg, cfg)
	require.NoError(t, err)
	return svc
}

func (h *engineHarness) createAccount(t *testing.T, email string, banned bool, mutate ...func(*models.GptAccount)) *models.GptAccount {
	t.Helper()
	expiry := time.Now().AddDate(0, 6, 0)
	account := &models.GptAccount{
		Email:             email,
		Banned:            banned,
		Open:              true,
		AccessToken:       "token-" + email,
		ProviderAccountID: "prov-" + email,
		TokenExpiresAt:    &expiry,
	}
	for _, fn := range mutate {
		fn(account)
	}
	require.NoError(t, h.db.Create(account).Error)
	return account
}

func (h *engineHarness) createUsedCode(t *testing.T, code string, accountID int64, usedBy string, usedAt time.Time, mutate ...func(*models.Code)) *models.Code {
	t.Helper()
	row := &models.Code{
		Code:      code,
		Channel:   models.ChannelCommon,
		AccountID: &accountID,
		IsUsed:    true,
		UsedAt:    &usedAt,
		UsedBy:    usedBy,
		CreatedAt: usedAt.AddDate(0, 0, -1),
	}
	for _, fn := range mutate {
		fn(row)
	}
	require.NoError(t, h.db.Create(row).Error)
	return row
}

func (h *engineHarness) createPoolCode(t *testing.T, code string, accountID int64, createdAt time.Time, mutate ...func(*models.Code)) *models.Code {
	t.Helper()
	row := &models.Code{
		Code:      code,
		Channel:   models.ChannelCommon,
		AccountID: &accountID,
		CreatedAt: createdAt,
	}
	for _, fn := range mutate {
		fn(row)
	}
	require.NoError(t, h.db.Create(row).Error)
	return row
}

func (h *engineHarness) createPaymentOrder(t *testing.T, codeID int64, createdAt time.Time, mutate ...func(*models.PaymentOrder)) *models.PaymentOrder {
	t.Helper()
	order := &models.PaymentOrder{
		CodeID:    codeID,
		Email:     "buyer@example.com",
		Status:    models.PaymentOrderStatusPaid,
		CreatedAt: createdAt,
	}
	for _, fn := range mutate {
		fn(order)
	}
	require.NoError(t, h.db.Create(order).Error)
	return order
}

func (h *engineHarness) logCount(t *testing.T, originalCodeID int64) int64 {
	t.Helper()
	count, err := h.ledger.CountByCode(context.Background(), originalCodeID)
	require.NoError(t, err)
	return count
}
