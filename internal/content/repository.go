package content

import (
	"context"
	"sync"
	"time"

	"github.com/pathwaylabs/pathway/internal/domain"
)

// Repository provides read-only lookup of module content units.
type Repository interface {
	// Units returns all units for a module ordered by
	// (problem index, subproblem index) ascending.
	Units(ctx context.Context, module int) ([]domain.ContentUnit, error)
}

// CachedRepository wraps the loader with a TTL cache so repeated session
// loads do not reread packs from disk. The clock is injectable for tests.
type CachedRepository struct {
	loader *Loader
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	cache map[int]cacheEntry
}

type cacheEntry struct {
	units   []domain.ContentUnit
	expires time.Time
}

// NewCachedRepository creates a repository over the loader with the given
// TTL. A nil clock defaults to time.Now.
func NewCachedRepository(loader *Loader, ttl time.Duration, now func() time.Time) *CachedRepository {
	if now == nil {
		now = time.Now
	}
	return &CachedRepository{
		loader: loader,
		ttl:    ttl,
		now:    now,
		cache:  make(map[int]cacheEntry),
	}
}

// Units returns the module's units, from cache when fresh.
func (r *CachedRepository) Units(ctx context.Context, module int) ([]domain.ContentUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	entry, ok := r.cache[module]
	if ok && r.now().Before(entry.expires) {
		r.mu.Unlock()
		return entry.units, nil
	}
	r.mu.Unlock()

	units, err := r.loader.Load(module)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[module] = cacheEntry{units: units, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()

	return units, nil
}

// Invalidate drops a module from the cache.
func (r *CachedRepository) Invalidate(module int) {
	r.mu.Lock()
	delete(r.cache, module)
	r.mu.Unlock()
}

// UnitAt finds the unit at (problem, subproblem), or nil.
func UnitAt(units []domain.ContentUnit, problem, subproblem int) *domain.ContentUnit {
	for i := range units {
		if units[i].ProblemIndex == problem && units[i].SubproblemIndex == subproblem {
			return &units[i]
		}
	}
	return nil
}

// MaxProblem returns the highest problem index in the unit set.
func MaxProblem(units []domain.ContentUnit) int {
	max := 0
	for _, u := range units {
		if u.ProblemIndex > max {
			max = u.ProblemIndex
		}
	}
	return max
}

// MaxSubproblem returns the highest subproblem index within a problem.
func MaxSubproblem(units []domain.ContentUnit, problem int) int {
	max := 0
	for _, u := range units {
		if u.ProblemIndex == problem && u.SubproblemIndex > max {
			max = u.SubproblemIndex
		}
	}
	return max
}

var _ Repository = (*CachedRepository)(nil)
