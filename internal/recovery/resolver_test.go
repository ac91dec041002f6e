package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/harveywang/codedesk-backend/pkg/db/models"
	"github.com/harveywang/codedesk-backend/pkg/enums"
	pkgerrors "github.com/harveywang/codedesk-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOneClassifiesPaymentOrigin(t *testing.T) {
	h := newEngineHarness(t)
	account := h.createAccount(t, "banned@mail.com", true)
	code := h.createUsedCode(t, "ORIG-1", account.ID, "customer@qq.com", time.Now().AddDate(0, 0, -5))
	h.createPaymentOrder(t, code.ID, time.Now().AddDate(0, 0, -5))

	item, err := h.resolver.ResolveOne(context.Background(), code.ID, 30)
	require.NoError(t, err)
	require.NotNil(t, item)

	assert.Equal(t, enums.OriginSourcePayment, item.Source)
	assert.Equal(t, enums.RedeemStatePending, item.State)
	assert.Equal(t, "customer@qq.com", item.CustomerEmail)
	assert.Equal(t, "banned@mail.com", item.AccountEmail)
	assert.EqualValues(t, 0, item.Attempts)
}

func TestResolveOneProbesSourcesInOrder(t *testing.T) {
	h := newEngineHarness(t)
	account := h.createAccount(t, "acc@mail.com", true)
	code := h.createUsedCode(t, "ORIG-2", account.ID, "buyer@qq.com", time.Now().AddDate(0, 0, -3))

	// Both a payment and a xianyu order reference the code; payment is probed
	// first and wins.
	h.createPaymentOrder(t, code.ID, time.Now().AddDate(0, 0, -3))
	require.NoError(t, h.db.Create(&models.XianyuOrder{
		CodeID: code.ID, OrderNo: "XY-1", Status: models.XianyuOrderStatusPaid,
		CreatedAt: time.Now().AddDate(0, 0, -2),
	}).Error)

	item, err := h.resolver.ResolveOne(context.Background(), code.ID, 30)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, enums.OriginSourcePayment, item.Source)
}

func TestResolveOneIgnoresRefundedOrders(t *testing.T) {
	h := newEngineHarness(t)
	account := h.createAccount(t, "acc@mail.com", true)
	code := h.createUsedCode(t, "ORIG-3", account.ID, "wx_98765", time.Now().AddDate(0, 0, -3))
	h.createPaymentOrder(t, code.ID, time.Now().AddDate(0, 0, -3), func(o *models.PaymentOrder) {
		o.Status = models.PaymentOrderStatusRefunded
	})

	item, err := h.resolver.ResolveOne(context.Background(), code.ID, 30)
	require.NoError(t, err)
	assert.Nil(t, item, "refunded sale must not be attributed to any source")
}

func TestResolveOneManualFallback(t *testing.T) {
	h := newEngineHarness(t)
	account := h.createAccount(t, "acc@mail.com", true)
	code := h.createUsedCode(t, "ORIG-4", account.ID, "hand.sold@gmail.com", time.Now().AddDate(0, 0, -2))

	item, err := h.resolver.ResolveOne(context.Background(), code.ID, 30)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, enums.OriginSourceManual, item.Source)
	assert.Equal(t, "hand.sold@gmail.com", item.CustomerEmail)
}

func TestResolveOneManualFallbackRejectsStaleSale(t *testing.T) {
	h := newEngineHarness(t)
	account := h.createAccount(t, "acc@mail.com", true)
	code := h.createUsedCode(t, "ORIG-5", account.ID, "hand.sold@gmail.com", time.Now().AddDate(0, 0, -2))

	// An order exists but fell outside the window: the sale is stale, not
	// manual, so the redemption is ineligible rather than misattributed.
	h.createPaymentOrder(t, code.ID, time.Now().AddDate(0, 0, -60))

	item, err := h.resolver.ResolveOne(context.Background(), code.ID, 30)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestResolveOneManualFallbackRequiresEmailIdentity(t *testing.T) {
	h := newEngineHarness(t)
	account := h.createAccount(t, "acc@mail.com", true)
	code := h.createUsedCode(t, "ORIG-6", account.ID, "wx_12345", time.Now().AddDate(0, 0, -2))

	item, err := h.resolver.ResolveOne(context.Background(), code.ID, 30)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestResolveOneOutsideWindow(t *testing.T) {
	h := newEngineHarness(t)
	account := h.createAccount(t, "acc@mail.com", true)
	code := h.createUsedCode(t, "ORIG-7", account.ID, "buyer@qq.com", time.Now().AddDate(0, 0, -45))
	h.createPaymentOrder(t, code.ID, time.Now().AddDate(0, 0, -45))

	item, err := h.resolver.ResolveOne(context.Background(), code.ID, 30)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestResolveOneNoWarrantyOptsOut(t *testing.T) {
	h := newEngineHarness(t)
	account := h.createAccount(t, "acc@mail.com", true)
	code := h.createUsedCode(t, "ORIG-8", account.ID, "buyer@qq.com", time.Now().AddDate(0, 0, -2))
	h.createPaymentOrder(t, code.ID, time.Now().AddDate(0, 0, -2), func(o *models.PaymentOrder) {
		o.OrderType = enums.OrderTypeNoWarranty
	})

	item, err := h.resolver.ResolveOne(context.Background(), code.ID, 30)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestResolveOneUnknownOrderTypeIsCovered(t *testing.T) {
	h := newEngineHarness(t)
	account := h.createAccount(t, "acc@mail.com", true)
	code := h.createUsedCode(t, "ORIG-9", account.ID, "buyer@qq.com", time.Now().AddDate(0, 0, -2))
	h.createPaymentOrder(t, code.ID, time.Now().AddDate(0, 0, -2))

	item, err := h.resolver.ResolveOne(context.Background(), code.ID, 30)
	require.NoError(t, err)
	require.NotNil(t, item, "missing order type defaults to warranty coverage")
}

func TestResolveOneNotFound(t *testing.T) {
	h := newEngineHarness(t)

	_, err := h.resolver.ResolveOne(context.Background(), 9999, 30)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestResolveOneNeverUsedCodeIsNotFound(t *testing.T) {
	h := newEngineHarness(t)
	account := h.createAccount(t, "acc@mail.com", false)
	code := h.createPoolCode(t, "FRESH-1", account.ID, time.Now().AddDate(0, 0, -3))

	_, err := h.resolver.ResolveOne(context.Background(), code.ID, 30)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestResolveFollowsLatestFinalLedgerRow(t *testing.T) {
	h := newEngineHarness(t)
	original := h.createAccount(t, "banned@mail.com", true)
	substitute := h.createAccount(t, "healthy@mail.com", false)
	code := h.createUsedCode(t, "ORIG-10", original.ID, "buyer@qq.com", time.Now().AddDate(0, 0, -5))
	h.createPaymentOrder(t, code.ID, time.Now().AddDate(0, 0, -5))

	require.NoError(t, h.ledger.Append(context.Background(), &models.RecoveryLog{
		OriginalCodeID:       code.ID,
		Status:               enums.RecoveryStatusSuccess,
		Source:               enums.OriginSourcePayment,
		RecoveryAccountEmail: &substitute.Email,
	}))

	item, err := h.resolver.ResolveOne(context.Background(), code.ID, 30)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, enums.RedeemStateDone, item.State)
	assert.Equal(t, "healthy@mail.com", item.AccountEmail)
	assert.EqualValues(t, 1, item.Attempts)
}

func TestResolveStateFailedAfterFailedAttempt(t *testing.T) {
	h := newEngineHarness(t)
	account := h.createAccount(t, "banned@mail.com", true)
	code := h.createUsedCode(t, "ORIG-11", account.ID, "buyer@qq.com", time.Now().AddDate(0, 0, -5))
	h.createPaymentOrder(t, code.ID, time.Now().AddDate(0, 0, -5))

	message := "pool exhausted"
	require.NoError(t, h.ledger.Append(context.Background(), &models.RecoveryLog{
		OriginalCodeID: code.ID,
		Status:         enums.RecoveryStatusFailed,
		Source:         enums.OriginSourcePayment,
		ErrorMessage:   &message,
	}))

	item, err := h.resolver.ResolveOne(context.Background(), code.ID, 30)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, enums.RedeemStateFailed, item.State)
	require.NotNil(t, item.LatestLog)
	assert.Equal(t, enums.RecoveryStatusFailed, item.LatestLog.Status)
}

func TestScopeFiltersBySourceAndPending(t *testing.T) {
	h := newEngineHarness(t)
	banned := h.createAccount(t, "banned@mail.com", true)
	healthy := h.createAccount(t, "healthy@mail.com", false)

	paid := h.createUsedCode(t, "SCOPE-1", banned.ID, "a@qq.com", time.Now().AddDate(0, 0, -3))
	h.createPaymentOrder(t, paid.ID, time.Now().AddDate(0, 0, -3))

	manual := h.createUsedCode(t, "SCOPE-2", banned.ID, "b@qq.com", time.Now().AddDate(0, 0, -2))

	done := h.createUsedCode(t, "SCOPE-3", healthy.ID, "c@qq.com", time.Now().AddDate(0, 0, -1))
	h.createPaymentOrder(t, done.ID, time.Now().AddDate(0, 0, -1))

	ctx := context.Background()

	all, err := h.resolver.Scope(ctx, ScopeParams{}, 30)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	source := enums.OriginSourcePayment
	payments, err := h.resolver.Scope(ctx, ScopeParams{Source: &source}, 30)
	require.NoError(t, err)
	require.Len(t, payments, 2)

	pending, err := h.resolver.Scope(ctx, ScopeParams{PendingOnly: true}, 30)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, paid.ID, pending[0].OriginalCodeID, "oldest redemption first")
	assert.Equal(t, manual.ID, pending[1].OriginalCodeID)
}

func TestEligibleForAccountListsOnlyThatAccount(t *testing.T) {
	h := newEngineHarness(t)
	banned := h.createAccount(t, "banned@mail.com", true)
	other := h.createAccount(t, "other@mail.com", true)

	mine := h.createUsedCode(t, "ACC-1", banned.ID, "a@qq.com", time.Now().AddDate(0, 0, -3))
	h.createPaymentOrder(t, mine.ID, time.Now().AddDate(0, 0, -3))

	theirs := h.createUsedCode(t, "ACC-2", other.ID, "b@qq.com", time.Now().AddDate(0, 0, -3))
	h.createPaymentOrder(t, theirs.ID, time.Now().AddDate(0, 0, -3))

	items, err := h.resolver.EligibleForAccount(context.Background(), "banned@mail.com", 30)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, mine.ID, items[0].OriginalCodeID)
}

func TestExtractEmail(t *testing.T) {
	assert.Equal(t, "a@b.com", extractEmail("a@b.com"))
	assert.Equal(t, "a@b.com", extractEmail("  a@b.com  "))
	assert.Equal(t, "a@b.com", extractEmail("wx_12345 a@b.com"))
	assert.Equal(t, "", extractEmail("wx_12345"))
	assert.Equal(t, "", extractEmail(""))

	assert.True(t, looksLikeEmail("a@b.com"))
	assert.False(t, looksLikeEmail("wx_12345 a@b.com"))
	assert.False(t, looksLikeEmail("wx_12345"))
}
