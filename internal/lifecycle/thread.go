package lifecycle

import (
	"context"
	"fmt"

	"workhub/internal/domain"
)

// ValidateDepth checks that a new thread entry under parent stays within
// MaxThreadDepth. A top-level entry (non-thread parent) is depth 1. The walk
// stops as soon as the ceiling is crossed.
func (m *Manager) ValidateDepth(ctx context.Context, store Store, parent domain.Ref) error {
	depth := 1
	cur := parent
	for cur.Type == m.ThreadType {
		depth++
		if depth > m.MaxThreadDepth {
			return &DepthExceededError{MaxDepth: m.MaxThreadDepth}
		}
		rec, err := store.Lookup(ctx, cur)
		if err != nil {
			return fmt.Errorf("thread parent %s: %w", cur, err)
		}
		next, ok := m.Graph.ParentOf(rec)
		if !ok {
			break
		}
		cur = next
	}
	return nil
}
