package content

import (
	"context"
	"testing"
	"time"
)

func TestCachedRepository_CachesWithinTTL(t *testing.T) {
	dir := t.TempDir()
	writeModuleFile(t, dir, "module-1.yaml", testModuleYAML)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	repo := NewCachedRepository(NewLoader(dir), time.Hour, clock)

	units, err := repo.Units(context.Background(), 1)
	if err != nil {
		t.Fatalf("Units() error = %v", err)
	}

	// Remove the backing file; the cache should still serve the module.
	writeModuleFile(t, dir, "module-1.yaml", "module: 1\nproblems: []\n")

	cached, err := repo.Units(context.Background(), 1)
	if err != nil {
		t.Fatalf("Units() from cache error = %v", err)
	}
	if len(cached) != len(units) {
		t.Errorf("cached len = %d; want %d", len(cached), len(units))
	}
}

func TestCachedRepository_ExpiresAfterTTL(t *testing.T) {
	dir := t.TempDir()
	writeModuleFile(t, dir, "module-1.yaml", testModuleYAML)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := NewCachedRepository(NewLoader(dir), time.Hour, func() time.Time { return now })

	if _, err := repo.Units(context.Background(), 1); err != nil {
		t.Fatalf("Units() error = %v", err)
	}

	// Advance past the TTL and break the backing file: the reload must hit
	// the loader again and fail.
	now = now.Add(2 * time.Hour)
	writeModuleFile(t, dir, "module-1.yaml", "module: 1\nproblems: []\n")

	if _, err := repo.Units(context.Background(), 1); err == nil {
		t.Error("Units() should reload after TTL expiry")
	}
}

func TestUnitHelpers(t *testing.T) {
	dir := t.TempDir()
	writeModuleFile(t, dir, "module-1.yaml", testModuleYAML)

	units, err := NewLoader(dir).Load(1)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := MaxProblem(units); got != 2 {
		t.Errorf("MaxProblem = %d; want 2", got)
	}
	if got := MaxSubproblem(units, 1); got != 2 {
		t.Errorf("MaxSubproblem(1) = %d; want 2", got)
	}
	if got := MaxSubproblem(units, 2); got != 1 {
		t.Errorf("MaxSubproblem(2) = %d; want 1", got)
	}
	if u := UnitAt(units, 1, 2); u == nil || u.SubproblemText != "Accumulate into a total." {
		t.Errorf("UnitAt(1,2) = %+v", u)
	}
	if u := UnitAt(units, 3, 1); u != nil {
		t.Error("UnitAt(3,1) should be nil")
	}
}
