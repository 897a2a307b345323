package content

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pathwaylabs/pathway/internal/domain"
	"gopkg.in/yaml.v3"
)

// ModuleFile represents the YAML structure for a module content pack
type ModuleFile struct {
	Module   int    `yaml:"module"`
	Title    string `yaml:"title"`
	Problems []struct {
		Index       int    `yaml:"index"`
		Text        string `yaml:"text"`
		Subproblems []struct {
			Index    int    `yaml:"index"`
			Text     string `yaml:"text"`
			Solution string `yaml:"solution"`
		} `yaml:"subproblems"`
	} `yaml:"problems"`
}

// Loader handles loading module content from YAML files
type Loader struct {
	basePath string
}

// NewLoader creates a new content loader
func NewLoader(basePath string) *Loader {
	return &Loader{basePath: basePath}
}

// Load reads the content pack for a module and flattens it to ordered
// content units. Returns domain.ErrContentNotFound when no pack exists or
// the pack holds no units.
func (l *Loader) Load(module int) ([]domain.ContentUnit, error) {
	path := filepath.Join(l.basePath, fmt.Sprintf("module-%d.yaml", module))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("module %d: %w", module, domain.ErrContentNotFound)
		}
		return nil, fmt.Errorf("read module file: %w", err)
	}

	var file ModuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse module file: %w", err)
	}

	var units []domain.ContentUnit
	for _, p := range file.Problems {
		for _, s := range p.Subproblems {
			units = append(units, domain.ContentUnit{
				Module:          module,
				ProblemIndex:    p.Index,
				SubproblemIndex: s.Index,
				ProblemText:     p.Text,
				SubproblemText:  s.Text,
				SolutionText:    s.Solution,
			})
		}
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("module %d: %w", module, domain.ErrContentNotFound)
	}

	sort.Slice(units, func(i, j int) bool {
		if units[i].ProblemIndex != units[j].ProblemIndex {
			return units[i].ProblemIndex < units[j].ProblemIndex
		}
		return units[i].SubproblemIndex < units[j].SubproblemIndex
	})

	if err := validateDense(units); err != nil {
		return nil, fmt.Errorf("module %d: %w", module, err)
	}

	return units, nil
}

// validateDense checks that problem and subproblem indices are 1-based and
// gap-free, which the advance logic depends on.
func validateDense(units []domain.ContentUnit) error {
	wantProblem := 1
	wantSub := 1
	for _, u := range units {
		if u.ProblemIndex == wantProblem+1 && u.SubproblemIndex == 1 {
			wantProblem++
			wantSub = 1
		}
		if u.ProblemIndex != wantProblem || u.SubproblemIndex != wantSub {
			return fmt.Errorf("non-dense index (%d,%d), expected (%d,%d)",
				u.ProblemIndex, u.SubproblemIndex, wantProblem, wantSub)
		}
		wantSub++
	}
	return nil
}
