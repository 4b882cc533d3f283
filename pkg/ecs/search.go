package ecs

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// SearchParam describes a debug query over the world's entities. Where is an expr-lang boolean
// expression evaluated against each matching entity. See https://expr-lang.org/docs/getting-started.
type SearchParam struct {
	Find  []string    // Component names as reported by ComponentNames
	Match SearchMatch // Defaults to MatchContains
	Where string      // Optional filter, e.g. `Position.X > 3 && Health.Current < 10`
}

type SearchMatch string

const (
	// MatchExact matches entities that have exactly the listed components.
	MatchExact SearchMatch = "exact"
	// MatchContains matches entities that have at least the listed components.
	MatchContains SearchMatch = "contains"
)

func (s *SearchParam) validateAndGetFilter() (*vm.Program, error) {
	if len(s.Find) == 0 {
		return nil, eris.New("component list cannot be empty")
	}
	if s.Match == "" {
		s.Match = MatchContains
	}
	if s.Match != MatchExact && s.Match != MatchContains {
		return nil, eris.Errorf("invalid `match` value: must be either '%s' or '%s'", MatchExact, MatchContains)
	}
	if s.Where == "" {
		return nil, nil //nolint:nilnil // no filter
	}

	filter, err := expr.Compile(s.Where, expr.AsBool())
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse where clause")
	}
	return filter, nil
}

// maskPart constrains a join to a raw column mask.
type maskPart struct {
	mask bitmap.Bitmap
}

func (m maskPart) joinMask() (bitmap.Bitmap, joinKind) {
	return m.mask, joinConstrained
}

// Search returns one map per live entity matching params. Each map holds the entity under
// "entity" and every found component under its bare type name, so a where clause reads
// `Position.X`. Every column is borrowed shared for the duration of the search.
func (w *World) Search(params SearchParam) ([]map[string]any, error) {
	filter, err := params.validateAndGetFilter()
	if err != nil {
		return nil, eris.Wrap(err, "invalid search params")
	}

	cols := w.sortedColumns()
	byName := make(map[string]abstractColumn, len(cols))
	for _, col := range cols {
		byName[col.key().String()] = col
	}

	found := make([]abstractColumn, 0, len(params.Find))
	for _, name := range params.Find {
		col, ok := byName[name]
		if !ok {
			return nil, eris.Wrapf(ErrComponentNotRegistered, "component %s", name)
		}
		found = append(found, col)
		delete(byName, name)
	}

	for _, col := range cols {
		g := col.acquire(BorrowShared)
		defer g.release()
	}

	parts := []Joinable{w.Entities()}
	for _, col := range found {
		parts = append(parts, maskPart{mask: col.maskRef()})
	}
	if params.Match == MatchExact {
		for _, col := range byName {
			parts = append(parts, Not(maskPart{mask: col.maskRef()}))
		}
	}

	results := make([]map[string]any, 0)
	for index := range Join(parts...).Indices() {
		e, ok := w.entities.entityAt(index)
		if !ok {
			continue
		}
		entityMap := map[string]any{"entity": e}
		for _, col := range found {
			entityMap[col.key().Type().Name()] = col.valueAt(index)
		}

		if filter == nil {
			results = append(results, entityMap)
			continue
		}

		output, err := expr.Run(filter, entityMap)
		if err != nil {
			return nil, eris.Wrap(err, "failed to run filter expression")
		}
		// Compiled without an environment, so a field access can still yield a non-bool.
		matched, ok := output.(bool)
		if !ok {
			return nil, eris.New("invalid where clause")
		}
		if matched {
			results = append(results, entityMap)
		}
	}
	return results, nil
}
