package model

// Scope selects which cases a task runs. It is one of ExplicitCases,
// ExplicitSets or WholeProject.
type Scope interface {
	Kind() ScopeKind
	// IDs returns the caller-ordered identifiers (nil for WholeProject).
	IDs() []int64
	isScope()
}

type ScopeKind string

const (
	ScopeCases   ScopeKind = "cases"
	ScopeSets    ScopeKind = "sets"
	ScopeProject ScopeKind = "project"
)

// ExplicitCases runs exactly these cases in this order.
type ExplicitCases []int64

// ExplicitSets runs the members of these case sets, sets in this order.
type ExplicitSets []int64

// WholeProject runs every case of the task's project.
type WholeProject struct{}

func (ExplicitCases) Kind() ScopeKind { return ScopeCases }
func (ExplicitSets) Kind() ScopeKind  { return ScopeSets }
func (WholeProject) Kind() ScopeKind  { return ScopeProject }

func (s ExplicitCases) IDs() []int64 { return append([]int64(nil), s...) }
func (s ExplicitSets) IDs() []int64  { return append([]int64(nil), s...) }
func (WholeProject) IDs() []int64    { return nil }

func (ExplicitCases) isScope() {}
func (ExplicitSets) isScope()  {}
func (WholeProject) isScope()  {}

// ScopeOf builds a scope from the two optional id lists.
// A non-empty case list wins over a set list for resolution; Task.SetIDs keeps
// the set list either way. Both empty means the whole project.
func ScopeOf(caseIDs, setIDs []int64) Scope {
	if len(caseIDs) > 0 {
		return ExplicitCases(append([]int64(nil), caseIDs...))
	}
	if len(setIDs) > 0 {
		return ExplicitSets(append([]int64(nil), setIDs...))
	}
	return WholeProject{}
}

// ScopeFromKind rebuilds a scope from its persisted form.
func ScopeFromKind(kind ScopeKind, ids []int64) Scope {
	switch kind {
	case ScopeCases:
		if len(ids) > 0 {
			return ExplicitCases(ids)
		}
	case ScopeSets:
		if len(ids) > 0 {
			return ExplicitSets(ids)
		}
	}
	return WholeProject{}
}
