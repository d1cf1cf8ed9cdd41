package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhub/internal/domain"
)

func TestCascadeDeleteCompleteness(t *testing.T) {
	f := newFixture()
	before := f.store.snapshot()

	res, err := f.mgr.CascadeDelete(context.Background(), f.store, f.task, "alice")
	require.NoError(t, err)

	subtree := []domain.Ref{f.task, f.c1, f.c2, f.file, f.activity, f.c3}
	assert.Equal(t, subtree, res.Deactivated, "depth-first in declaration order")
	for _, ref := range subtree {
		assert.False(t, f.active(ref), "%s should be inactive", ref)
	}
	for ref, rec := range before {
		if contains(subtree, ref) {
			continue
		}
		assert.Empty(t, cmp.Diff(rec, f.store.get(ref)), "%s outside the subtree changed", ref)
	}
}

func TestCascadeDeleteIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.mgr.CascadeDelete(ctx, f.store, f.dept, "alice")
	require.NoError(t, err)
	first := f.store.snapshot()

	f.clock.Advance(time.Hour)
	res, err := f.mgr.CascadeDelete(ctx, f.store, f.dept, "bob")
	require.NoError(t, err)
	assert.Empty(t, res.Deactivated)
	assert.NotEmpty(t, res.Visited)
	if diff := cmp.Diff(first, f.store.snapshot()); diff != "" {
		t.Fatalf("second cascade changed state (-first +second):\n%s", diff)
	}
}

func TestCascadeDeleteResumesInterruptedRun(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	// simulate a crash after only the root was written
	rootState, _ := f.store.get(f.task).Lifecycle.MarkInactive(f.clock.Now(), "alice")
	require.NoError(t, f.store.SaveLifecycle(ctx, f.task, rootState))

	f.clock.Advance(time.Minute)
	res, err := f.mgr.CascadeDelete(ctx, f.store, f.task, "retry-worker")
	require.NoError(t, err)
	assert.NotContains(t, res.Deactivated, f.task)
	assert.False(t, f.active(f.c2))
	assert.Equal(t, "alice", *f.store.get(f.task).Lifecycle.InactivatedBy)
	assert.Equal(t, "retry-worker", *f.store.get(f.c2).Lifecycle.InactivatedBy)
}

func TestCascadeDeleteFromOrganizationReachesEverything(t *testing.T) {
	f := newFixture()
	_, err := f.mgr.CascadeDelete(context.Background(), f.store, f.org, "root")
	require.NoError(t, err)
	for ref := range f.store.rows {
		assert.False(t, f.active(ref), "%s should be inactive", ref)
	}
}

func TestCascadeDeleteAbortsOnStoreError(t *testing.T) {
	f := newFixture()
	f.store.failOn[f.c2] = errBoom
	_, err := f.mgr.CascadeDelete(context.Background(), f.store, f.task, "alice")
	require.ErrorIs(t, err, errBoom)
}

func TestCascadeDeleteMissingRoot(t *testing.T) {
	f := newFixture()
	_, err := f.mgr.CascadeDelete(context.Background(), f.store, domain.Ref{Type: domain.TypeTask, ID: "nope"}, "alice")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCascadeDeleteSurvivesCommentCycle(t *testing.T) {
	f := newFixture()
	// corrupt data: c1 claims c2 as its parent while c2 replies to c1
	f.store.rows[f.c1].Fields = poly(f.c2)
	_, err := f.mgr.CascadeDelete(context.Background(), f.store, f.c2, "alice")
	require.NoError(t, err)
	assert.False(t, f.active(f.c1))
	assert.False(t, f.active(f.c2))
}

func contains(refs []domain.Ref, ref domain.Ref) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

// staleStore reports the listed refs as still active, as a transaction that
// read them before a concurrent delete committed would.
type staleStore struct {
	*memStore
	stale map[domain.Ref]bool
}

func (s staleStore) Lookup(ctx context.Context, ref domain.Ref) (domain.Record, error) {
	rec, err := s.memStore.Lookup(ctx, ref)
	if err == nil && s.stale[ref] {
		rec.Lifecycle = domain.NewLifecycle()
	}
	return rec, err
}

func TestCascadeDeleteStopsOnConcurrentDeletion(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.mgr.CascadeDelete(ctx, f.store, f.task, "alice")
	require.NoError(t, err)
	first := f.store.snapshot()

	_, err = f.mgr.CascadeDelete(ctx, staleStore{memStore: f.store, stale: map[domain.Ref]bool{f.task: true}}, f.task, "bob")
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, cmp.Diff(first, f.store.snapshot()), "the first deletion is kept")
}
