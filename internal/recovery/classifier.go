package recovery

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/harveywang/codedesk-backend/pkg/db/models"
	"github.com/harveywang/codedesk-backend/pkg/enums"
)

// originClassifier decides whether a redeemed code came in through one sales
// channel. Probes run in declaration order and the first match wins, so adding
// a channel means appending an entry, not touching control flow.
type originClassifier struct {
	source enums.OriginSource
	probe  func(ctx context.Context, repo Repository, codeID int64, since time.Time) (bool, error)
}

var originClassifiers = []originClassifier{
	{source: enums.OriginSourcePayment, probe: func(ctx context.Context, repo Repository, codeID int64, since time.Time) (bool, error) {
		return repo.HasPaymentOrder(ctx, codeID, since)
	}},
	{source: enums.OriginSourceCredit, probe: func(ctx context.Context, repo Repository, codeID int64, since time.Time) (bool, error) {
		return repo.HasCreditOrder(ctx, codeID, since)
	}},
	{source: enums.OriginSourceXianyu, probe: func(ctx context.Context, repo Repository, codeID int64, since time.Time) (bool, error) {
		return repo.HasXianyuOrder(ctx, codeID, since)
	}},
	{source: enums.OriginSourceXhs, probe: func(ctx context.Context, repo Repository, codeID int64, since time.Time) (bool, error) {
		return repo.HasXhsOrder(ctx, codeID, since)
	}},
}

// classifyOrigin resolves the sales channel of a redeemed code. The manual
// fallback only fires when the redeemer identity is an email and no order of
// any kind references the code; an order whose record merely fell outside the
// window is a stale sale, not a manual hand-out. Returns ok=false when the
// redemption cannot be attributed to any channel.
func classifyOrigin(ctx context.Context, repo Repository, code *models.Code, since time.Time) (enums.OriginSource, bool, error) {
	for _, c := range originClassifiers {
		matched, err := c.probe(ctx, repo, code.ID, since)
		if err != nil {
			return "", false, err
		}
		if matched {
			return c.source, true, nil
		}
	}

	if !looksLikeEmail(code.UsedBy) {
		return "", false, nil
	}
	any, err := repo.HasAnyOrder(ctx, code.ID)
	if err != nil {
		return "", false, err
	}
	if any {
		return "", false, nil
	}
	return enums.OriginSourceManual, true, nil
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// extractEmail pulls the customer address out of a redeemer identity string.
// Identities are either a bare email or a composite like "wx_12345 a@b.com".
func extractEmail(usedBy string) string {
	return emailPattern.FindString(strings.TrimSpace(usedBy))
}

func looksLikeEmail(usedBy string) bool {
	trimmed := strings.TrimSpace(usedBy)
	return trimmed != "" && emailPattern.FindString(trimmed) == trimmed
}
