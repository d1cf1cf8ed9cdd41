package lifecycle

import (
	"context"
	"errors"
	"sort"
	"time"

	"workhub/internal/domain"
)

// memStore is an in-memory Store keyed by ref, kept in insertion order.
type memStore struct {
	rows    map[domain.Ref]*domain.Record
	order   []domain.Ref
	failOn  map[domain.Ref]error
	removed []domain.Ref
}

func newMemStore() *memStore {
	return &memStore{rows: map[domain.Ref]*domain.Record{}, failOn: map[domain.Ref]error{}}
}

func (s *memStore) put(t domain.EntityType, id string, fields map[string]string, lists map[string][]string) domain.Ref {
	ref := domain.Ref{Type: t, ID: id}
	s.rows[ref] = &domain.Record{Ref: ref, Lifecycle: domain.NewLifecycle(), Fields: fields, Lists: lists}
	s.order = append(s.order, ref)
	return ref
}

func (s *memStore) get(ref domain.Ref) domain.Record {
	return cloneRecord(*s.rows[ref])
}

func cloneRecord(r domain.Record) domain.Record {
	out := r
	if r.Fields != nil {
		out.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	if r.Lists != nil {
		out.Lists = make(map[string][]string, len(r.Lists))
		for k, v := range r.Lists {
			out.Lists[k] = append([]string(nil), v...)
		}
	}
	return out
}

func (s *memStore) snapshot() map[domain.Ref]domain.Record {
	out := make(map[domain.Ref]domain.Record, len(s.rows))
	for k, v := range s.rows {
		out[k] = cloneRecord(*v)
	}
	return out
}

func (s *memStore) Lookup(_ context.Context, ref domain.Ref) (domain.Record, error) {
	if err := s.failOn[ref]; err != nil {
		return domain.Record{}, err
	}
	rec, ok := s.rows[ref]
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}
	return cloneRecord(*rec), nil
}

func (s *memStore) Children(_ context.Context, parent domain.Ref, edge Edge) ([]string, error) {
	var ids []string
	for _, ref := range s.order {
		rec, ok := s.rows[ref]
		if !ok || ref.Type != edge.Child {
			continue
		}
		if rec.Field(edge.ForeignKey) != parent.ID {
			continue
		}
		if edge.TypeColumn != "" && rec.Field(edge.TypeColumn) != string(parent.Type) {
			continue
		}
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

func (s *memStore) SaveLifecycle(_ context.Context, ref domain.Ref, lc domain.Lifecycle) error {
	rec, ok := s.rows[ref]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.Lifecycle.Active == lc.Active {
		return domain.ErrConflict
	}
	rec.Lifecycle = lc
	return nil
}

func (s *memStore) SaveRefs(_ context.Context, ref domain.Ref, field WeakRef, ids []string) error {
	rec, ok := s.rows[ref]
	if !ok {
		return domain.ErrNotFound
	}
	if field.Many {
		if rec.Lists == nil {
			rec.Lists = map[string][]string{}
		}
		rec.Lists[field.Field] = ids
		return nil
	}
	if rec.Fields == nil {
		rec.Fields = map[string]string{}
	}
	rec.Fields[field.Field] = ""
	if len(ids) > 0 {
		rec.Fields[field.Field] = ids[0]
	}
	return nil
}

func (s *memStore) InactiveBefore(_ context.Context, t domain.EntityType, cutoff time.Time) ([]domain.Record, error) {
	var out []domain.Record
	for _, ref := range s.order {
		rec, ok := s.rows[ref]
		if !ok || ref.Type != t || rec.Lifecycle.Active {
			continue
		}
		if rec.Lifecycle.InactiveSince.Before(cutoff) {
			out = append(out, cloneRecord(*rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ref.ID < out[j].Ref.ID })
	return out, nil
}

func (s *memStore) Remove(_ context.Context, ref domain.Ref) error {
	if _, ok := s.rows[ref]; !ok {
		return domain.ErrNotFound
	}
	delete(s.rows, ref)
	s.removed = append(s.removed, ref)
	return nil
}

var errBoom = errors.New("boom")

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

// fixture is the O/D/T/C1/C2 tree plus neighbours outside the subtree.
type fixture struct {
	store *memStore
	clock *clock
	mgr   *Manager

	org, dept, otherDept         domain.Ref
	alice, bob, vendor, material domain.Ref
	task, otherTask              domain.Ref
	c1, c2, activity, c3, file   domain.Ref
	notice                       domain.Ref
}

func poly(parent domain.Ref) map[string]string {
	return map[string]string{"parent_id": parent.ID, "parent_type": string(parent.Type)}
}

func newFixture() *fixture {
	s := newMemStore()
	c := newClock()
	f := &fixture{store: s, clock: c}
	f.mgr = NewManager(MustDefaultGraph(), Options{
		Now:    c.Now,
		Policy: PurgePolicy{Grace: map[domain.EntityType]time.Duration{domain.TypeComment: 30 * 24 * time.Hour, domain.TypeTask: 90 * 24 * time.Hour}},
	})
	f.org = s.put(domain.TypeOrganization, "org-1", nil, nil)
	f.dept = s.put(domain.TypeDepartment, "dept-1", map[string]string{"organization_id": "org-1", "head_id": "user-alice"}, nil)
	f.otherDept = s.put(domain.TypeDepartment, "dept-2", map[string]string{"organization_id": "org-1"}, nil)
	f.alice = s.put(domain.TypeUser, "user-alice", map[string]string{"department_id": "dept-1"}, nil)
	f.bob = s.put(domain.TypeUser, "user-bob", map[string]string{"department_id": "dept-2"}, nil)
	f.vendor = s.put(domain.TypeVendor, "vendor-1", map[string]string{"organization_id": "org-1"}, nil)
	f.material = s.put(domain.TypeMaterial, "mat-1", map[string]string{"department_id": "dept-1", "vendor_id": "vendor-1"}, nil)
	f.task = s.put(domain.TypeTask, "task-1", map[string]string{"department_id": "dept-1", "vendor_id": "vendor-1"}, map[string][]string{
		"watcher_ids":  {"user-alice", "user-bob"},
		"assignee_ids": {"user-alice"},
		"material_ids": {"mat-1"},
	})
	f.otherTask = s.put(domain.TypeTask, "task-2", map[string]string{"department_id": "dept-2"}, nil)
	f.c1 = s.put(domain.TypeComment, "c1", poly(f.task), map[string][]string{"mention_ids": {"user-bob"}})
	f.c2 = s.put(domain.TypeComment, "c2", poly(f.c1), nil)
	f.activity = s.put(domain.TypeActivity, "act-1", map[string]string{"task_id": "task-1"}, nil)
	f.c3 = s.put(domain.TypeComment, "c3", poly(f.activity), nil)
	f.file = s.put(domain.TypeAttachment, "file-1", poly(f.c2), nil)
	f.notice = s.put(domain.TypeNotification, "note-1", map[string]string{"recipient_id": "user-bob", "task_id": "task-1"}, nil)
	return f
}

func (f *fixture) active(ref domain.Ref) bool {
	return f.store.rows[ref].Lifecycle.Active
}
