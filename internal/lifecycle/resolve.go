package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"workhub/internal/domain"
)

// ResolveGroupingRoot follows parent pointers from ref up to the grouping-root
// type. ok is false when a link is missing or broken, or when the walk exceeds
// MaxResolveDepth hops.
func (m *Manager) ResolveGroupingRoot(ctx context.Context, store Store, ref domain.Ref) (id string, ok bool, err error) {
	cur := ref
	for hops := 0; hops <= m.MaxResolveDepth; hops++ {
		if cur.Type == m.GroupingRoot {
			return cur.ID, true, nil
		}
		rec, err := store.Lookup(ctx, cur)
		if errors.Is(err, domain.ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("resolve %s: %w", cur, err)
		}
		parent, found := m.Graph.ParentOf(rec)
		if !found {
			return "", false, nil
		}
		cur = parent
	}
	m.logger().Warn("grouping root walk exceeded ceiling", "ref", ref.String(), "max_depth", m.MaxResolveDepth)
	return "", false, nil
}
