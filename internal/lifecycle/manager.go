package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"workhub/internal/domain"
)

const (
	DefaultMaxThreadDepth  = 3
	DefaultMaxResolveDepth = 10
)

// Store is the transaction-scoped storage the orchestrators run against. An
// implementation is bound to one open transaction; the manager never begins,
// commits or rolls back.
type Store interface {
	// Lookup loads a record including inactive ones. Missing records yield domain.ErrNotFound.
	Lookup(ctx context.Context, ref domain.Ref) (domain.Record, error)
	// Children lists ids of parent's children along edge, inactive ones included,
	// in a stable order.
	Children(ctx context.Context, parent domain.Ref, edge Edge) ([]string, error)
	// SaveLifecycle writes an active/inactive transition. It fails with
	// domain.ErrConflict when the stored record is already in lc's state.
	SaveLifecycle(ctx context.Context, ref domain.Ref, lc domain.Lifecycle) error
	SaveRefs(ctx context.Context, ref domain.Ref, field WeakRef, ids []string) error
	// InactiveBefore lists records of type t deactivated strictly before cutoff.
	InactiveBefore(ctx context.Context, t domain.EntityType, cutoff time.Time) ([]domain.Record, error)
	Remove(ctx context.Context, ref domain.Ref) error
}

type Options struct {
	// GroupingRoot is the type ancestor resolution stops at.
	GroupingRoot domain.EntityType
	// ThreadType is the self-referential type whose nesting is capped.
	ThreadType      domain.EntityType
	MaxThreadDepth  int
	MaxResolveDepth int
	Policy          PurgePolicy
	Logger          *slog.Logger
	Now             func() time.Time
}

// Manager runs cascade delete, restore, ancestor resolution, thread depth
// checks and purge against a Graph.
type Manager struct {
	Graph           *Graph
	GroupingRoot    domain.EntityType
	ThreadType      domain.EntityType
	MaxThreadDepth  int
	MaxResolveDepth int
	Policy          PurgePolicy
	Logger          *slog.Logger
	Now             func() time.Time
}

func NewManager(g *Graph, opts Options) *Manager {
	m := &Manager{
		Graph:           g,
		GroupingRoot:    opts.GroupingRoot,
		ThreadType:      opts.ThreadType,
		MaxThreadDepth:  opts.MaxThreadDepth,
		MaxResolveDepth: opts.MaxResolveDepth,
		Policy:          opts.Policy,
		Logger:          opts.Logger,
		Now:             opts.Now,
	}
	if m.GroupingRoot == "" {
		m.GroupingRoot = domain.TypeTask
	}
	if m.ThreadType == "" {
		m.ThreadType = domain.TypeComment
	}
	if m.MaxThreadDepth <= 0 {
		m.MaxThreadDepth = DefaultMaxThreadDepth
	}
	if m.MaxResolveDepth <= 0 {
		m.MaxResolveDepth = DefaultMaxResolveDepth
	}
	return m
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
