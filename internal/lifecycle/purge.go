package lifecycle

import (
	"context"
	"fmt"
	"time"

	"workhub/internal/domain"
)

// PurgePolicy holds the per-type grace window between deactivation and
// physical removal. Types without a window are never purged.
type PurgePolicy struct {
	Grace map[domain.EntityType]time.Duration
}

// Cutoff returns the latest deactivation time still eligible at now.
func (p PurgePolicy) Cutoff(t domain.EntityType, now time.Time) (time.Time, bool) {
	grace, ok := p.Grace[t]
	if !ok || grace <= 0 {
		return time.Time{}, false
	}
	return now.Add(-grace), true
}

// Eligible reports whether a record may be removed at now. Restored records
// have no InactiveSince and are never eligible.
func (p PurgePolicy) Eligible(t domain.EntityType, lc domain.Lifecycle, now time.Time) bool {
	if lc.Active || lc.InactiveSince == nil {
		return false
	}
	cutoff, ok := p.Cutoff(t, now)
	if !ok {
		return false
	}
	return !lc.InactiveSince.After(cutoff)
}

type PurgeReport struct {
	DryRun bool                      `json:"dry_run"`
	Counts map[domain.EntityType]int `json:"counts"`
	Purged []domain.Ref              `json:"purged"`
}

// Purge physically removes every record past its grace window, leaves first.
func (m *Manager) Purge(ctx context.Context, store Store, now time.Time, dryRun bool) (PurgeReport, error) {
	report := PurgeReport{DryRun: dryRun, Counts: map[domain.EntityType]int{}}
	types := m.Graph.Types()
	for i := len(types) - 1; i >= 0; i-- {
		t := types[i]
		cutoff, ok := m.Policy.Cutoff(t, now)
		if !ok {
			continue
		}
		candidates, err := store.InactiveBefore(ctx, t, cutoff.Add(time.Nanosecond))
		if err != nil {
			return report, fmt.Errorf("purge list %s: %w", t, err)
		}
		for _, rec := range candidates {
			if !m.Policy.Eligible(t, rec.Lifecycle, now) {
				continue
			}
			if !dryRun {
				if err := store.Remove(ctx, rec.Ref); err != nil {
					return report, fmt.Errorf("purge %s: %w", rec.Ref, err)
				}
			}
			report.Counts[t]++
			report.Purged = append(report.Purged, rec.Ref)
		}
	}
	if len(report.Purged) > 0 {
		m.logger().Info("purge", "dry_run", dryRun, "purged", len(report.Purged))
	}
	return report, nil
}
