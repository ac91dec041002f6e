package settings

import (
	"context"
	"strconv"
	"sync"
	"time"

	pkgerrors "github.com/harveywang/codedesk-backend/pkg/errors"
)

const (
	// KeyRecoveryWindowDays overrides the default warranty window.
	KeyRecoveryWindowDays = "recovery_window_days"

	// Admin overrides are clamped to this range.
	MinWindowDays = 1
	MaxWindowDays = 90
)

// Service reads and writes admin settings through a TTL cache. The cache is an
// explicit collaborator passed by reference to consumers; nothing here is
// package-level state.
type Service interface {
	RecoveryWindowDays(ctx context.Context) (int, error)
	SetRecoveryWindowDays(ctx context.Context, days int) error
	Invalidate()
}

type service struct {
	repo        Repository
	ttl         time.Duration
	defaultDays int

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	found     bool
	fetchedAt time.Time
}

// NewService wires a settings service with the given cache TTL and the
// config-level window fallback.
func NewService(repo Repository, ttl time.Duration, defaultDays int) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settings repository required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if defaultDays < MinWindowDays || defaultDays > MaxWindowDays {
		defaultDays = 30
	}
	return &service{
		repo:        repo,
		ttl:         ttl,
		defaultDays: defaultDays,
		entries:     map[string]cacheEntry{},
	}, nil
}

func (s *service) RecoveryWindowDays(ctx context.Context) (int, error) {
	raw, found, err := s.cachedGet(ctx, KeyRecoveryWindowDays)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read recovery window setting")
	}
	if !found {
		return s.defaultDays, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < MinWindowDays || days > MaxWindowDays {
		return s.defaultDays, nil
	}
	return days, nil
}

func (s *service) SetRecoveryWindowDays(ctx context.Context, days int) error {
	if days < MinWindowDays || days > MaxWindowDays {
		return pkgerrors.New(pkgerrors.CodeValidation, "recovery window must be between 1 and 90 days")
	}
	if err := s.repo.Set(ctx, KeyRecoveryWindowDays, strconv.Itoa(days)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write recovery window setting")
	}
	s.Invalidate()
	return nil
}

// Invalidate drops all cached values; the next read hits the store.
func (s *service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[string]cacheEntry{}
}

func (s *service) cachedGet(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < s.ttl {
		return entry.value, entry.found, nil
	}

	value, found, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", false, err
	}

	s.mu.Lock()
	s.entries[key] = cacheEntry{value: value, found: found, fetchedAt: time.Now()}
	s.mu.Unlock()
	return value, found, nil
}
