package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"workhub/internal/config"
	"workhub/internal/db"
	"workhub/internal/domain"
	"workhub/internal/events"
	"workhub/internal/lifecycle"
	"workhub/internal/repo"
)

// SystemActor attributes background work such as scheduled purges.
const SystemActor = "system"

// Change summarises a committed operation for post-commit hooks.
type Change struct {
	Action         string       `json:"action"`
	OrganizationID string       `json:"organization_id,omitempty"`
	Root           domain.Ref   `json:"root"`
	Refs           []domain.Ref `json:"refs"`
	ActorID        string       `json:"actor_id"`
}

// Hook runs after a transaction committed. Hooks never run for rolled back work.
type Hook func(ctx context.Context, c Change)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Lifecycle *lifecycle.Manager
	Config    *config.Config
	Now       func() time.Time
	Logger    *slog.Logger
	Hooks     []Hook
}

func New(r repo.Repo, cfg *config.Config, logger *slog.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := Engine{
		DB:     r.DB,
		Repo:   r,
		Events: events.Writer{Dialect: r.Dialect},
		Config: cfg,
		Now:    time.Now,
		Logger: logger,
	}
	e.Lifecycle = lifecycle.NewManager(lifecycle.MustDefaultGraph(), lifecycle.Options{
		MaxThreadDepth:  cfg.Lifecycle.ThreadMaxDepth,
		MaxResolveDepth: cfg.Lifecycle.ResolveMaxDepth,
		Policy:          lifecycle.PurgePolicy{Grace: cfg.GraceDurations()},
		Logger:          logger,
		Now:             e.now,
	})
	return e
}

// WithClock returns a copy of e whose clock, events and lifecycle manager use now.
func (e Engine) WithClock(now func() time.Time) Engine {
	e.Now = now
	e.Events.Now = now
	m := *e.Lifecycle
	m.Now = now
	e.Lifecycle = &m
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) timestamp() string {
	return repo.FormatTime(e.now())
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// inTx runs fn in one transaction and commits when it returns nil. A
// serialization failure is reported as domain.ErrConflict.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx, store *repo.TxStore) error) error {
	tx, err := e.DB.BeginTx(ctx, e.Repo.Dialect.TxOptions())
	if err != nil {
		return err
	}
	defer tx.Rollback()
	err = fn(tx, e.Repo.Store(tx, e.Lifecycle.Graph))
	if err == nil {
		err = tx.Commit()
	}
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	}
	return err
}

func (e Engine) runHooks(ctx context.Context, c Change) {
	for _, h := range e.Hooks {
		h(ctx, c)
	}
}

// Get loads any entity, inactive ones included.
func (e Engine) Get(ctx context.Context, ref domain.Ref) (any, error) {
	return e.Repo.GetEntity(ctx, nil, ref)
}

// Delete soft-deletes ref and everything it owns in one transaction.
func (e Engine) Delete(ctx context.Context, ref domain.Ref, actorID string) (lifecycle.Cascade, error) {
	var (
		res lifecycle.Cascade
		org string
	)
	err := e.inTx(ctx, func(tx *sql.Tx, store *repo.TxStore) error {
		var err error
		if org, err = store.OrganizationOf(ctx, ref); err != nil {
			return err
		}
		if res, err = e.Lifecycle.CascadeDelete(ctx, store, ref, actorID); err != nil {
			return err
		}
		for _, r := range res.Deactivated {
			if err := e.Events.Append(ctx, tx, events.Type(string(r.Type), events.ActionDeleted), org, string(r.Type), r.ID, actorID,
				events.EventPayload{"root": ref.String()}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return lifecycle.Cascade{}, err
	}
	e.logger().Info("cascade delete committed", "root", ref.String(), "deactivated", len(res.Deactivated), "actor", actorID)
	if len(res.Deactivated) > 0 {
		e.runHooks(ctx, Change{Action: events.ActionDeleted, OrganizationID: org, Root: ref, Refs: res.Deactivated, ActorID: actorID})
	}
	return res, nil
}

// Restore reactivates exactly one record.
func (e Engine) Restore(ctx context.Context, ref domain.Ref, actorID string) (lifecycle.Restoration, error) {
	var (
		res lifecycle.Restoration
		org string
	)
	err := e.inTx(ctx, func(tx *sql.Tx, store *repo.TxStore) error {
		var err error
		if org, err = store.OrganizationOf(ctx, ref); err != nil {
			return err
		}
		if res, err = e.Lifecycle.Restore(ctx, store, ref, actorID); err != nil {
			return err
		}
		if !res.Restored {
			return nil
		}
		kind := string(ref.Type)
		if len(res.Dropped) > 0 {
			if err := e.Events.Append(ctx, tx, events.Type(kind, events.ActionRefsRepaired), org, kind, ref.ID, actorID,
				events.EventPayload{"dropped": res.Dropped}); err != nil {
				return err
			}
		}
		return e.Events.Append(ctx, tx, events.Type(kind, events.ActionRestored), org, kind, ref.ID, actorID, nil)
	})
	if err != nil {
		var blocked *lifecycle.RestoreBlockedError
		if errors.As(err, &blocked) {
			e.logger().Info("restore blocked", "ref", ref.String(), "reason", blocked.Reason, "blocker", blocked.RefType+":"+blocked.RefID)
		}
		return lifecycle.Restoration{}, err
	}
	if res.Restored {
		e.logger().Info("restore committed", "ref", ref.String(), "actor", actorID)
		e.runHooks(ctx, Change{Action: events.ActionRestored, OrganizationID: org, Root: ref, Refs: []domain.Ref{ref}, ActorID: actorID})
	}
	return res, nil
}

// GroupingRoot resolves the task an entity ultimately belongs to.
func (e Engine) GroupingRoot(ctx context.Context, ref domain.Ref) (string, bool, error) {
	if _, err := domain.ParseEntityType(string(ref.Type)); err != nil {
		return "", false, err
	}
	tx, err := e.DB.BeginTx(ctx, e.Repo.Dialect.TxOptions())
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()
	return e.Lifecycle.ResolveGroupingRoot(ctx, e.Repo.Store(tx, e.Lifecycle.Graph), ref)
}

// PurgeExpired removes records whose grace window has elapsed. A dry run
// reports without removing or writing events.
func (e Engine) PurgeExpired(ctx context.Context, dryRun bool) (lifecycle.PurgeReport, error) {
	var report lifecycle.PurgeReport
	err := e.inTx(ctx, func(tx *sql.Tx, store *repo.TxStore) error {
		var err error
		if report, err = e.Lifecycle.Purge(ctx, store, e.now(), dryRun); err != nil {
			return err
		}
		if dryRun || len(report.Purged) == 0 {
			return nil
		}
		return e.Events.Append(ctx, tx, events.Type("lifecycle", events.ActionPurged), "", "lifecycle", "", SystemActor,
			events.EventPayload{"counts": report.Counts, "purged": report.Purged})
	})
	if err != nil {
		return lifecycle.PurgeReport{}, fmt.Errorf("purge expired: %w", err)
	}
	if !dryRun && len(report.Purged) > 0 {
		e.runHooks(ctx, Change{Action: events.ActionPurged, Refs: report.Purged, ActorID: SystemActor})
	}
	return report, nil
}
