package domain

// ContentUnit is one (problem, subproblem) leaf of a module's content tree.
// Units are immutable and owned by the content repository. Indices are
// 1-based and dense within a module; ordering is (ProblemIndex,
// SubproblemIndex) ascending.
type ContentUnit struct {
	Module          int
	ProblemIndex    int
	SubproblemIndex int
	ProblemText     string
	SubproblemText  string
	SolutionText    string // optional reference solution
}
