package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"workhub/internal/domain"
)

// Edge is an ownership edge from a parent type to the children whose
// ForeignKey column holds the parent id. TypeColumn is set for polymorphic
// children and must then equal the parent's type tag.
type Edge struct {
	Child      domain.EntityType
	ForeignKey string
	TypeColumn string
}

// WeakRef is a non-owning pointer column. Many marks a JSON list column.
type WeakRef struct {
	Field  string
	Target domain.EntityType
	Many   bool
}

// Dependency is a reference that must stay active for its holder to be restorable.
type Dependency struct {
	Field  string
	Target domain.EntityType
}

// ParentPointer describes how to walk from a record to its parent when
// resolving the grouping root. Exactly one of TypeColumn or Fixed is set.
type ParentPointer struct {
	IDColumn   string
	TypeColumn string
	Fixed      domain.EntityType
}

type Declaration struct {
	Table    string
	Owns     []Edge
	WeakRefs []WeakRef
	Critical []Dependency
	Parent   *ParentPointer
}

// ParentEdge is an ownership edge seen from the child side.
type ParentEdge struct {
	Parent domain.EntityType
	Edge   Edge
}

// Columns lists the reference columns a store must load for a type.
type Columns struct {
	Scalars []string
	Lists   []string
}

// Graph is the validated, immutable ownership declaration.
type Graph struct {
	order   []domain.EntityType
	decls   map[domain.EntityType]Declaration
	parents map[domain.EntityType][]ParentEdge
	columns map[domain.EntityType]Columns
}

// NewGraph validates decls and builds the lookup tables. order fixes the
// traversal order of types and must list every declared type exactly once.
func NewGraph(order []domain.EntityType, decls map[domain.EntityType]Declaration) (*Graph, error) {
	if len(order) != len(decls) {
		return nil, fmt.Errorf("graph: order lists %d types, %d declared", len(order), len(decls))
	}
	g := &Graph{
		order:   append([]domain.EntityType(nil), order...),
		decls:   make(map[domain.EntityType]Declaration, len(decls)),
		parents: make(map[domain.EntityType][]ParentEdge),
		columns: make(map[domain.EntityType]Columns),
	}
	seen := map[domain.EntityType]bool{}
	for _, t := range order {
		if seen[t] {
			return nil, fmt.Errorf("graph: type %s listed twice", t)
		}
		seen[t] = true
		d, ok := decls[t]
		if !ok {
			return nil, fmt.Errorf("graph: type %s has no declaration", t)
		}
		g.decls[t] = d
	}
	var errs []error
	for _, t := range order {
		errs = append(errs, g.checkDeclaration(t)...)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	for _, t := range order {
		for _, e := range g.decls[t].Owns {
			g.parents[e.Child] = append(g.parents[e.Child], ParentEdge{Parent: t, Edge: e})
		}
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	for _, t := range order {
		g.columns[t] = g.buildColumns(t)
	}
	return g, nil
}

func (g *Graph) checkDeclaration(t domain.EntityType) []error {
	d := g.decls[t]
	var errs []error
	if strings.TrimSpace(d.Table) == "" {
		errs = append(errs, fmt.Errorf("graph: %s: table is required", t))
	}
	for _, e := range d.Owns {
		if _, ok := g.decls[e.Child]; !ok {
			errs = append(errs, fmt.Errorf("graph: %s owns undeclared type %s", t, e.Child))
		}
		if e.ForeignKey == "" {
			errs = append(errs, fmt.Errorf("graph: %s -> %s: foreign key is required", t, e.Child))
		}
		if e.Child == t && e.TypeColumn == "" {
			errs = append(errs, fmt.Errorf("graph: self edge on %s must be polymorphic", t))
		}
	}
	for _, w := range d.WeakRefs {
		if w.Field == "" {
			errs = append(errs, fmt.Errorf("graph: %s: weak ref field is required", t))
		}
		if _, ok := g.decls[w.Target]; !ok {
			errs = append(errs, fmt.Errorf("graph: %s.%s targets undeclared type %s", t, w.Field, w.Target))
		}
	}
	for _, c := range d.Critical {
		if c.Field == "" {
			errs = append(errs, fmt.Errorf("graph: %s: dependency field is required", t))
		}
		if _, ok := g.decls[c.Target]; !ok {
			errs = append(errs, fmt.Errorf("graph: %s.%s depends on undeclared type %s", t, c.Field, c.Target))
		}
	}
	if p := d.Parent; p != nil {
		if p.IDColumn == "" {
			errs = append(errs, fmt.Errorf("graph: %s: parent pointer id column is required", t))
		}
		if (p.TypeColumn == "") == (p.Fixed == "") {
			errs = append(errs, fmt.Errorf("graph: %s: parent pointer needs exactly one of type column or fixed type", t))
		}
		if p.Fixed != "" {
			if _, ok := g.decls[p.Fixed]; !ok {
				errs = append(errs, fmt.Errorf("graph: %s: parent pointer targets undeclared type %s", t, p.Fixed))
			}
		}
	}
	return errs
}

// checkAcyclic rejects ownership cycles between types. Self edges are the
// only permitted loops; instance-level loops along them are cut by the
// traversal's visited set.
func (g *Graph) checkAcyclic() error {
	const (
		white = iota
		grey
		black
	)
	color := map[domain.EntityType]int{}
	var path []domain.EntityType
	var visit func(t domain.EntityType) error
	visit = func(t domain.EntityType) error {
		color[t] = grey
		path = append(path, t)
		for _, e := range g.decls[t].Owns {
			if e.Child == t {
				continue
			}
			switch color[e.Child] {
			case grey:
				cycle := append([]domain.EntityType(nil), path...)
				cycle = append(cycle, e.Child)
				return fmt.Errorf("graph: ownership cycle %s", joinTypes(cycle))
			case white:
				if err := visit(e.Child); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		color[t] = black
		return nil
	}
	for _, t := range g.order {
		if color[t] == white {
			if err := visit(t); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinTypes(ts []domain.EntityType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, " -> ")
}

func (g *Graph) buildColumns(t domain.EntityType) Columns {
	var cols Columns
	seen := map[string]bool{}
	addScalar := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			cols.Scalars = append(cols.Scalars, c)
		}
	}
	for _, pe := range g.parents[t] {
		addScalar(pe.Edge.ForeignKey)
		addScalar(pe.Edge.TypeColumn)
	}
	d := g.decls[t]
	if d.Parent != nil {
		addScalar(d.Parent.IDColumn)
		addScalar(d.Parent.TypeColumn)
	}
	for _, c := range d.Critical {
		addScalar(c.Field)
	}
	for _, w := range d.WeakRefs {
		if w.Many {
			if !seen[w.Field] {
				seen[w.Field] = true
				cols.Lists = append(cols.Lists, w.Field)
			}
			continue
		}
		addScalar(w.Field)
	}
	return cols
}

// Types returns every declared type in traversal order.
func (g *Graph) Types() []domain.EntityType {
	return append([]domain.EntityType(nil), g.order...)
}

func (g *Graph) Declaration(t domain.EntityType) (Declaration, bool) {
	d, ok := g.decls[t]
	return d, ok
}

// Table returns the storage table of t.
func (g *Graph) Table(t domain.EntityType) (string, error) {
	d, ok := g.decls[t]
	if !ok {
		return "", fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidRef, t)
	}
	return d.Table, nil
}

func (g *Graph) Owned(t domain.EntityType) []Edge {
	return g.decls[t].Owns
}

func (g *Graph) ParentEdges(t domain.EntityType) []ParentEdge {
	return g.parents[t]
}

func (g *Graph) Columns(t domain.EntityType) Columns {
	return g.columns[t]
}

// Parents returns the ownership parents a record points at, in declaration order.
func (g *Graph) Parents(rec domain.Record) []domain.Ref {
	var refs []domain.Ref
	for _, pe := range g.parents[rec.Ref.Type] {
		id := rec.Field(pe.Edge.ForeignKey)
		if id == "" {
			continue
		}
		if pe.Edge.TypeColumn != "" && rec.Field(pe.Edge.TypeColumn) != string(pe.Parent) {
			continue
		}
		refs = append(refs, domain.Ref{Type: pe.Parent, ID: id})
	}
	return refs
}

// ParentOf follows the record's parent pointer. ok is false when the type has
// no pointer, the pointer is empty, or its type tag is not a known type.
func (g *Graph) ParentOf(rec domain.Record) (domain.Ref, bool) {
	d, found := g.decls[rec.Ref.Type]
	if !found || d.Parent == nil {
		return domain.Ref{}, false
	}
	id := rec.Field(d.Parent.IDColumn)
	if id == "" {
		return domain.Ref{}, false
	}
	t := d.Parent.Fixed
	if t == "" {
		parsed, err := domain.ParseEntityType(rec.Field(d.Parent.TypeColumn))
		if err != nil {
			return domain.Ref{}, false
		}
		t = parsed
	}
	if _, known := g.decls[t]; !known {
		return domain.Ref{}, false
	}
	return domain.Ref{Type: t, ID: id}, true
}
