// Package resolver expands a task's scope into an ordered list of case ids.
package resolver

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"apitask/internal/catalog"
	"apitask/internal/task/model"
)

// Catalog is the lookup surface the resolver reads from.
type Catalog interface {
	FindProjectByName(ctx context.Context, name string) (catalog.Project, error)
	ListCaseSetsByProject(ctx context.Context, projectID int64) ([]catalog.CaseSet, error)
	ListCasesByCaseSet(ctx context.Context, setID int64) ([]catalog.Case, error)
}

// Resolver is stateless; every call reads the catalog fresh.
type Resolver struct {
	cat      Catalog
	parallel int
}

// New returns a resolver fetching at most parallel case sets at once (0 means 4).
func New(cat Catalog, parallel int) *Resolver {
	if parallel <= 0 {
		parallel = 4
	}
	return &Resolver{cat: cat, parallel: parallel}
}

// Resolve returns the concrete, ordered case ids for t.
//
// Explicit case ids are returned as given. Explicit sets are expanded in the
// given set order. A whole-project scope walks the project's sets by num.
// Members of each set are ordered by num.
func (r *Resolver) Resolve(ctx context.Context, t model.Task) ([]int64, error) {
	switch sc := t.Scope.(type) {
	case model.ExplicitCases:
		return sc.IDs(), nil
	case model.ExplicitSets:
		return r.expandSets(ctx, sc.IDs())
	case model.WholeProject, nil:
		p, err := r.cat.FindProjectByName(ctx, t.ProjectName)
		if err != nil {
			return nil, err
		}
		sets, err := r.cat.ListCaseSetsByProject(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("list case sets of %q: %w", t.ProjectName, err)
		}
		ids := make([]int64, len(sets))
		for i, s := range sets {
			ids[i] = s.ID
		}
		return r.expandSets(ctx, ids)
	default:
		return nil, fmt.Errorf("unsupported scope kind %q", sc.Kind())
	}
}

// expandSets fetches members of each set concurrently; each result lands in
// its own slot so concatenation keeps set order.
func (r *Resolver) expandSets(ctx context.Context, setIDs []int64) ([]int64, error) {
	if len(setIDs) == 0 {
		return []int64{}, nil
	}
	slots := make([][]int64, len(setIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i, id := range setIDs {
		g.Go(func() error {
			cases, err := r.cat.ListCasesByCaseSet(gctx, id)
			if err != nil {
				return fmt.Errorf("list cases of set %d: %w", id, err)
			}
			ids := make([]int64, len(cases))
			for j, c := range cases {
				ids[j] = c.ID
			}
			slots[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]int64, 0, len(setIDs))
	for _, s := range slots {
		out = append(out, s...)
	}
	return out, nil
}
