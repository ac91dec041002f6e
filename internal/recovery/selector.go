package recovery

import (
	"context"
	"time"

	pkgerrors "github.com/harveywang/codedesk-backend/pkg/errors"
)

// Selector picks substitute codes out of the common pool. Only the shared
// channel is ever eligible regardless of where the original sale happened,
// and a candidate's account token must outlive the warranty deadline of the
// redemption being recovered.
type Selector struct {
	repo     Repository
	deadline DeadlineResolver
	capacity int

	now func() time.Time
}

// NewSelector wires a candidate selector with the pool seat capacity ceiling.
func NewSelector(repo Repository, deadline DeadlineResolver, capacity int) *Selector {
	if capacity <= 0 {
		capacity = 5
	}
	return &Selector{repo: repo, deadline: deadline, capacity: capacity, now: time.Now}
}

// Pick returns the best available substitute for one original redemption, or
// nil when the pool has nothing that satisfies its deadline.
func (s *Selector) Pick(ctx context.Context, originalCodeID int64) (*Candidate, error) {
	minExpiry, err := s.deadline.Deadline(ctx, originalCodeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve warranty deadline")
	}
	if now := s.now(); minExpiry.Before(now) {
		minExpiry = now
	}
	candidate, err := s.repo.PickCandidate(ctx, minExpiry, s.capacity, startOfDay(s.now()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "pick candidate")
	}
	return candidate, nil
}

// Available counts pool codes passing the static constraints. Deadlines are
// per-item, so this is an upper bound on what a batch can actually place.
func (s *Selector) Available(ctx context.Context) (int64, error) {
	count, err := s.repo.CountCandidates(ctx, s.now(), s.capacity)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count candidates")
	}
	return count, nil
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// planDeadlineResolver derives the contractual end of an original sale: the
// newest order's creation instant plus the plan length, or the redemption
// instant when no order exists (manual sales).
type planDeadlineResolver struct {
	repo Repository
	plan time.Duration
}

// NewPlanDeadlineResolver wires the default deadline resolver with the
// subscription plan length.
func NewPlanDeadlineResolver(repo Repository, plan time.Duration) DeadlineResolver {
	return &planDeadlineResolver{repo: repo, plan: plan}
}

func (d *planDeadlineResolver) Deadline(ctx context.Context, originalCodeID int64) (time.Time, error) {
	start, err := d.repo.LatestOrderCreatedAt(ctx, originalCodeID)
	if err != nil {
		return time.Time{}, err
	}
	if start == nil {
		code, err := d.repo.CodeByID(ctx, originalCodeID)
		if err != nil {
			return time.Time{}, err
		}
		if code == nil || code.UsedAt == nil {
			return time.Time{}, pkgerrors.New(pkgerrors.CodeNotFound, "no redemption to derive a deadline from")
		}
		start = code.UsedAt
	}
	return start.Add(d.plan), nil
}
