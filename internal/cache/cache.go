package cache

import (
	"context"
	"sync"
	"time"

	"tradeledger/backend/internal/domain"
)

// ReportCache stores computed summaries of closed report windows.
// Invalidate drops every entry at once by starting a new generation. Get
// reports the generation it looked in; a summary computed after a miss is
// Set under that generation, so a summary built from data that was
// invalidated mid-flight is never served.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.ReportSummary, int64, bool, error)
	Set(ctx context.Context, gen int64, key string, value *domain.ReportSummary, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.ReportSummary, int64, bool, error) {
	return nil, 0, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ int64, _ string, _ *domain.ReportSummary, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context) error {
	return nil
}

// TokenDenylist remembers revoked access tokens until they would have
// expired anyway.
type TokenDenylist interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type MemoryTokenDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryTokenDenylist() *MemoryTokenDenylist {
	return &MemoryTokenDenylist{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (d *MemoryTokenDenylist) Revoke(_ context.Context, tokenID string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, exp := range d.revoked {
		if !exp.After(now) {
			delete(d.revoked, id)
		}
	}
	if until.After(now) {
		d.revoked[tokenID] = until
	}
	return nil
}

func (d *MemoryTokenDenylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !exp.After(d.now()) {
		delete(d.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
