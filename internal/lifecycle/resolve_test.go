package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhub/internal/domain"
)

func TestResolveGroupingRoot(t *testing.T) {
	f := newFixture()
	cases := []struct {
		name string
		ref  domain.Ref
		want string
		ok   bool
	}{
		{"task resolves to itself", f.task, "task-1", true},
		{"top-level comment", f.c1, "task-1", true},
		{"attachment on nested reply", f.file, "task-1", true},
		{"activity", f.activity, "task-1", true},
		{"comment on activity", f.c3, "task-1", true},
		{"type without parent pointer", f.dept, "", false},
		{"unknown record", domain.Ref{Type: domain.TypeComment, ID: "ghost"}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, ok, err := f.mgr.ResolveGroupingRoot(context.Background(), f.store, tc.ref)
			require.NoError(t, err)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, id)
		})
	}
}

func TestResolveGroupingRootIgnoresLifecycle(t *testing.T) {
	f := newFixture()
	deleteTask(t, f)
	id, ok, err := f.mgr.ResolveGroupingRoot(context.Background(), f.store, f.file)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "task-1", id)
}

func TestResolveGroupingRootBrokenChain(t *testing.T) {
	f := newFixture()
	delete(f.store.rows, f.c1)
	id, ok, err := f.mgr.ResolveGroupingRoot(context.Background(), f.store, f.file)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)

	f.store.rows[f.c2].Fields["parent_type"] = "bogus"
	_, ok, err = f.mgr.ResolveGroupingRoot(context.Background(), f.store, f.c2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveGroupingRootStopsOnCycle(t *testing.T) {
	f := newFixture()
	f.store.rows[f.c1].Fields = poly(f.c2)
	_, ok, err := f.mgr.ResolveGroupingRoot(context.Background(), f.store, f.file)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveGroupingRootPropagatesStoreErrors(t *testing.T) {
	f := newFixture()
	f.store.failOn[f.c1] = errBoom
	_, _, err := f.mgr.ResolveGroupingRoot(context.Background(), f.store, f.c2)
	require.ErrorIs(t, err, errBoom)
}
