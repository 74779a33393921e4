package deduction

import (
	"sync"
	"time"

	"github.com/motswedi/deductions/internal/domain"
	"github.com/motswedi/deductions/internal/repository"
)

// TenantCache caches tenant settings (cap percentage, regulator cap, name)
// for the duration of a batch cycle. It is owned by whoever constructs it and
// invalidated explicitly or by TTL; staleness up to the TTL is acceptable
// because tenant settings change on human timescales.
type TenantCache struct {
	repo *repository.TenantRepo
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]tenantCacheEntry
}

type tenantCacheEntry struct {
	tenant   *domain.Tenant
	cachedAt time.Time
}

func NewTenantCache(repo *repository.TenantRepo, ttl time.Duration) *TenantCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TenantCache{
		repo:    repo,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]tenantCacheEntry),
	}
}

// Get returns the tenant, from cache when fresh. A nil tenant (unknown ID) is
// not cached.
func (c *TenantCache) Get(id string) (*domain.Tenant, error) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok && c.now().Sub(e.cachedAt) < c.ttl {
		c.mu.Unlock()
		return e.tenant, nil
	}
	c.mu.Unlock()

	t, err := c.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if t != nil {
		c.mu.Lock()
		c.entries[id] = tenantCacheEntry{tenant: t, cachedAt: c.now()}
		c.mu.Unlock()
	}
	return t, nil
}

// Invalidate drops one tenant from the cache.
func (c *TenantCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}
