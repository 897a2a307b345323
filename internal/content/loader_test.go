package content

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pathwaylabs/pathway/internal/domain"
)

const testModuleYAML = `module: 1
title: Loops and Accumulators
problems:
  - index: 1
    text: "Sum the numbers from 1 to n."
    subproblems:
      - index: 1
        text: "Write the loop header."
        solution: "for i in range(1, n+1):"
      - index: 2
        text: "Accumulate into a total."
  - index: 2
    text: "Find the largest element of a list."
    subproblems:
      - index: 1
        text: "Track the current maximum."
`

func writeModuleFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
		t.Fatalf("write module file: %v", err)
	}
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeModuleFile(t, dir, "module-1.yaml", testModuleYAML)

	units, err := NewLoader(dir).Load(1)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(units) != 3 {
		t.Fatalf("len(units) = %d; want 3", len(units))
	}

	// Ordered by (problem, subproblem) ascending.
	want := [][2]int{{1, 1}, {1, 2}, {2, 1}}
	for i, u := range units {
		if u.ProblemIndex != want[i][0] || u.SubproblemIndex != want[i][1] {
			t.Errorf("units[%d] = (%d,%d); want (%d,%d)",
				i, u.ProblemIndex, u.SubproblemIndex, want[i][0], want[i][1])
		}
	}

	if units[0].SolutionText == "" {
		t.Error("units[0] should carry the reference solution")
	}
	if units[1].SolutionText != "" {
		t.Error("units[1] has no solution in the pack")
	}
}

func TestLoader_Load_NotFound(t *testing.T) {
	_, err := NewLoader(t.TempDir()).Load(42)
	if !errors.Is(err, domain.ErrContentNotFound) {
		t.Errorf("Load() error = %v; want ErrContentNotFound", err)
	}
}

func TestLoader_Load_EmptyPack(t *testing.T) {
	dir := t.TempDir()
	writeModuleFile(t, dir, "module-1.yaml", "module: 1\nproblems: []\n")

	_, err := NewLoader(dir).Load(1)
	if !errors.Is(err, domain.ErrContentNotFound) {
		t.Errorf("Load() error = %v; want ErrContentNotFound", err)
	}
}

func TestLoader_Load_RejectsGaps(t *testing.T) {
	dir := t.TempDir()
	writeModuleFile(t, dir, "module-1.yaml", `module: 1
problems:
  - index: 1
    text: "p1"
    subproblems:
      - index: 1
        text: "s1"
      - index: 3
        text: "s3"
`)

	if _, err := NewLoader(dir).Load(1); err == nil {
		t.Error("Load() should reject non-dense subproblem indices")
	}
}
