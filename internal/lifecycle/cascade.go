package lifecycle

import (
	"context"
	"fmt"

	"workhub/internal/domain"
)

// Cascade reports one cascade run. Visited lists every node reached in
// traversal order; Deactivated the subset whose state changed.
type Cascade struct {
	Root        domain.Ref   `json:"root"`
	Visited     []domain.Ref `json:"visited"`
	Deactivated []domain.Ref `json:"deactivated"`
}

// CascadeDelete deactivates root and every owned descendant. Already inactive
// subtrees are traversed again so a retried cascade converges; their original
// deletion metadata is left untouched.
func (m *Manager) CascadeDelete(ctx context.Context, store Store, root domain.Ref, actor string) (Cascade, error) {
	res := Cascade{Root: root}
	at := m.now()
	visited := map[domain.Ref]bool{}
	stack := []domain.Ref{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[ref] {
			continue
		}
		visited[ref] = true

		rec, err := store.Lookup(ctx, ref)
		if err != nil {
			return res, fmt.Errorf("cascade lookup %s: %w", ref, err)
		}
		res.Visited = append(res.Visited, ref)
		next, changed := rec.Lifecycle.Apply(domain.Op{Kind: domain.OpDeactivate, At: at, Actor: actor})
		if changed {
			if err := store.SaveLifecycle(ctx, ref, next); err != nil {
				return res, fmt.Errorf("cascade deactivate %s: %w", ref, err)
			}
			res.Deactivated = append(res.Deactivated, ref)
		}

		var children []domain.Ref
		for _, edge := range m.Graph.Owned(ref.Type) {
			ids, err := store.Children(ctx, ref, edge)
			if err != nil {
				return res, fmt.Errorf("cascade children %s -> %s: %w", ref, edge.Child, err)
			}
			for _, id := range ids {
				children = append(children, domain.Ref{Type: edge.Child, ID: id})
			}
		}
		// push in reverse so children pop in declaration order
		for i := len(children) - 1; i >= 0; i-- {
			if !visited[children[i]] {
				stack = append(stack, children[i])
			}
		}
	}
	m.logger().Debug("cascade delete", "root", root.String(), "visited", len(res.Visited), "deactivated", len(res.Deactivated))
	return res, nil
}
