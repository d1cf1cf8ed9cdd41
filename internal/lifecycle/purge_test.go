package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhub/internal/domain"
)

const day = 24 * time.Hour

func TestPurgePolicyEligible(t *testing.T) {
	p := PurgePolicy{Grace: map[domain.EntityType]time.Duration{domain.TypeComment: 30 * day}}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	at := func(d time.Duration) domain.Lifecycle {
		lc, _ := domain.NewLifecycle().MarkInactive(now.Add(-d), "x")
		return lc
	}

	assert.True(t, p.Eligible(domain.TypeComment, at(30*day), now), "boundary is inclusive")
	assert.True(t, p.Eligible(domain.TypeComment, at(45*day), now))
	assert.False(t, p.Eligible(domain.TypeComment, at(29*day), now))
	assert.False(t, p.Eligible(domain.TypeTask, at(400*day), now), "no window, never purged")
	assert.False(t, p.Eligible(domain.TypeComment, domain.NewLifecycle(), now))

	restored, _ := at(90 * day).MarkActive(now, "x")
	assert.False(t, p.Eligible(domain.TypeComment, restored, now))
}

func TestPurgeRemovesExpiredLeavesFirst(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	deleteTask(t, f)

	f.clock.Advance(31 * day)
	report, err := f.mgr.Purge(ctx, f.store, f.clock.Now(), false)
	require.NoError(t, err)
	assert.False(t, report.DryRun)
	assert.Equal(t, 3, report.Counts[domain.TypeComment])
	assert.Equal(t, []domain.Ref{f.c1, f.c2, f.c3}, report.Purged)
	assert.Contains(t, f.store.rows, f.task, "task window is 90 days")
	assert.Contains(t, f.store.rows, f.file, "attachments have no window")

	f.clock.Advance(60 * day)
	report, err = f.mgr.Purge(ctx, f.store, f.clock.Now(), false)
	require.NoError(t, err)
	assert.Equal(t, []domain.Ref{f.task}, report.Purged)
	assert.Equal(t, []domain.Ref{f.c1, f.c2, f.c3, f.task}, f.store.removed)
}

func TestPurgeDryRunKeepsRecords(t *testing.T) {
	f := newFixture()
	deleteTask(t, f)
	f.clock.Advance(100 * day)

	report, err := f.mgr.Purge(context.Background(), f.store, f.clock.Now(), true)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Len(t, report.Purged, 4)
	assert.Empty(t, f.store.removed)
	assert.False(t, f.active(f.task))
}

func TestPurgeSkipsRestoredRecords(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	deleteTask(t, f)
	_, err := f.mgr.Restore(ctx, f.store, f.task, "bob")
	require.NoError(t, err)
	_, err = f.mgr.Restore(ctx, f.store, f.c1, "bob")
	require.NoError(t, err)

	f.clock.Advance(200 * day)
	report, err := f.mgr.Purge(ctx, f.store, f.clock.Now(), false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Ref{f.c2, f.c3}, report.Purged)
	assert.Contains(t, f.store.rows, f.c1)
	assert.Contains(t, f.store.rows, f.task)
}
