package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"workhub/internal/domain"
)

// Restoration reports one restore call. Dropped maps weak-reference fields to
// the ids removed during repair.
type Restoration struct {
	Ref      domain.Ref          `json:"ref"`
	Restored bool                `json:"restored"`
	Dropped  map[string][]string `json:"dropped,omitempty"`
}

// Restore reactivates a single record. Ancestors and critical dependencies
// must already be active; dangling weak references are pruned. Owned
// children are never restored along with it.
func (m *Manager) Restore(ctx context.Context, store Store, ref domain.Ref, actor string) (Restoration, error) {
	res := Restoration{Ref: ref}
	rec, err := store.Lookup(ctx, ref)
	if err != nil {
		return res, fmt.Errorf("restore lookup %s: %w", ref, err)
	}
	if rec.Lifecycle.IsActive() {
		return res, nil
	}
	if err := m.checkAncestors(ctx, store, rec); err != nil {
		return res, err
	}
	if err := m.checkDependencies(ctx, store, rec); err != nil {
		return res, err
	}
	dropped, err := m.repairWeakRefs(ctx, store, rec)
	if err != nil {
		return res, err
	}
	res.Dropped = dropped

	next, changed := rec.Lifecycle.Apply(domain.Op{Kind: domain.OpActivate, At: m.now(), Actor: actor})
	if changed {
		if err := store.SaveLifecycle(ctx, ref, next); err != nil {
			return res, fmt.Errorf("restore activate %s: %w", ref, err)
		}
	}
	res.Restored = changed
	return res, nil
}

// checkAncestors walks the whole ownership-ancestor chain breadth first and
// blocks on the top-most ancestor that is missing or inactive, which is the
// one an operator has to restore first.
func (m *Manager) checkAncestors(ctx context.Context, store Store, rec domain.Record) error {
	var blocked *RestoreBlockedError
	seen := map[domain.Ref]bool{rec.Ref: true}
	queue := m.Graph.Parents(rec)
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if seen[ref] {
			continue
		}
		seen[ref] = true
		parent, err := store.Lookup(ctx, ref)
		if errors.Is(err, domain.ErrNotFound) {
			blocked = &RestoreBlockedError{Reason: ReasonParentInactive, RefType: string(ref.Type), RefID: ref.ID, Missing: true}
			continue
		}
		if err != nil {
			return fmt.Errorf("restore ancestor %s: %w", ref, err)
		}
		if !parent.Lifecycle.IsActive() {
			blocked = &RestoreBlockedError{Reason: ReasonParentInactive, RefType: string(ref.Type), RefID: ref.ID}
		}
		queue = append(queue, m.Graph.Parents(parent)...)
	}
	if blocked != nil {
		return blocked
	}
	return nil
}

func (m *Manager) checkDependencies(ctx context.Context, store Store, rec domain.Record) error {
	decl, _ := m.Graph.Declaration(rec.Ref.Type)
	for _, dep := range decl.Critical {
		id := rec.Field(dep.Field)
		if id == "" {
			continue
		}
		ref := domain.Ref{Type: dep.Target, ID: id}
		target, err := store.Lookup(ctx, ref)
		if errors.Is(err, domain.ErrNotFound) {
			return &RestoreBlockedError{Reason: ReasonDependencyInactive, RefType: string(ref.Type), RefID: ref.ID, Missing: true}
		}
		if err != nil {
			return fmt.Errorf("restore dependency %s: %w", ref, err)
		}
		if !target.Lifecycle.IsActive() {
			return &RestoreBlockedError{Reason: ReasonDependencyInactive, RefType: string(ref.Type), RefID: ref.ID}
		}
	}
	return nil
}

func (m *Manager) repairWeakRefs(ctx context.Context, store Store, rec domain.Record) (map[string][]string, error) {
	decl, _ := m.Graph.Declaration(rec.Ref.Type)
	var dropped map[string][]string
	for _, w := range decl.WeakRefs {
		ids := rec.List(w.Field)
		if !w.Many {
			ids = nil
			if id := rec.Field(w.Field); id != "" {
				ids = []string{id}
			}
		}
		if len(ids) == 0 {
			continue
		}
		kept := make([]string, 0, len(ids))
		var gone []string
		for _, id := range ids {
			live, err := m.isLive(ctx, store, domain.Ref{Type: w.Target, ID: id})
			if err != nil {
				return nil, err
			}
			if live {
				kept = append(kept, id)
			} else {
				gone = append(gone, id)
			}
		}
		if len(gone) == 0 {
			continue
		}
		if err := store.SaveRefs(ctx, rec.Ref, w, kept); err != nil {
			return nil, fmt.Errorf("restore repair %s.%s: %w", rec.Ref, w.Field, err)
		}
		if dropped == nil {
			dropped = map[string][]string{}
		}
		dropped[w.Field] = gone
	}
	return dropped, nil
}

func (m *Manager) isLive(ctx context.Context, store Store, ref domain.Ref) (bool, error) {
	rec, err := store.Lookup(ctx, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("restore weak ref %s: %w", ref, err)
	}
	return rec.Lifecycle.IsActive(), nil
}
