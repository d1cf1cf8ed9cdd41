package domain

import (
	"fmt"
	"time"
)

// EntityType tags every record subject to lifecycle management. The set is closed.
type EntityType string

const (
	TypeOrganization EntityType = "organization"
	TypeDepartment   EntityType = "department"
	TypeUser         EntityType = "user"
	TypeVendor       EntityType = "vendor"
	TypeMaterial     EntityType = "material"
	TypeTask         EntityType = "task"
	TypeActivity     EntityType = "activity"
	TypeComment      EntityType = "comment"
	TypeAttachment   EntityType = "attachment"
	TypeNotification EntityType = "notification"
)

// EntityTypes lists every type in cascade order, root first.
var EntityTypes = []EntityType{
	TypeOrganization,
	TypeDepartment,
	TypeUser,
	TypeVendor,
	TypeMaterial,
	TypeTask,
	TypeActivity,
	TypeComment,
	TypeAttachment,
	TypeNotification,
}

// ParseEntityType validates a raw tag against the closed set.
func ParseEntityType(s string) (EntityType, error) {
	for _, t := range EntityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown entity type %q", ErrInvalidRef, s)
}

// Ref identifies one record.
type Ref struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
}

func (r Ref) String() string { return string(r.Type) + ":" + r.ID }

// Lifecycle is the soft-delete metadata carried by every entity.
// Active is false exactly when InactiveSince is set.
type Lifecycle struct {
	Active        bool       `json:"active"`
	InactiveSince *time.Time `json:"inactive_since,omitempty"`
	InactivatedBy *string    `json:"inactivated_by,omitempty"`
	RestoredSince *time.Time `json:"restored_since,omitempty"`
	RestoredBy    *string    `json:"restored_by,omitempty"`
}

// NewLifecycle returns the metadata of a freshly created record.
func NewLifecycle() Lifecycle {
	return Lifecycle{Active: true}
}

func (l Lifecycle) IsActive() bool { return l.Active }

// Valid reports whether the active flag agrees with the inactive timestamp.
func (l Lifecycle) Valid() bool {
	return l.Active == (l.InactiveSince == nil)
}

type OpKind int

const (
	OpDeactivate OpKind = iota + 1
	OpActivate
)

// Op is a lifecycle transition request.
type Op struct {
	Kind  OpKind
	At    time.Time
	Actor string
}

// Apply returns the state after op and whether anything changed. Repeating an
// operation is an identity transition.
func (l Lifecycle) Apply(op Op) (Lifecycle, bool) {
	switch op.Kind {
	case OpDeactivate:
		return l.MarkInactive(op.At, op.Actor)
	case OpActivate:
		return l.MarkActive(op.At, op.Actor)
	default:
		return l, false
	}
}

// MarkInactive deactivates the record. The first deletion wins: an inactive
// record keeps its original InactiveSince/InactivatedBy.
func (l Lifecycle) MarkInactive(at time.Time, actor string) (Lifecycle, bool) {
	if !l.Active {
		return l, false
	}
	at = at.UTC()
	l.Active = false
	l.InactiveSince = &at
	l.InactivatedBy = &actor
	return l, true
}

// MarkActive reactivates the record and stamps the restore metadata.
func (l Lifecycle) MarkActive(at time.Time, actor string) (Lifecycle, bool) {
	if l.Active {
		return l, false
	}
	at = at.UTC()
	l.Active = true
	l.InactiveSince = nil
	l.InactivatedBy = nil
	l.RestoredSince = &at
	l.RestoredBy = &actor
	return l, true
}

// Record is the lifecycle view of one row: its metadata plus the reference
// columns named by the ownership graph.
type Record struct {
	Ref       Ref                 `json:"ref"`
	Lifecycle Lifecycle           `json:"lifecycle"`
	Fields    map[string]string   `json:"fields,omitempty"`
	Lists     map[string][]string `json:"lists,omitempty"`
}

// Field returns a scalar reference column, "" when NULL.
func (r Record) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// List returns a list reference column.
func (r Record) List(name string) []string {
	if r.Lists == nil {
		return nil
	}
	return r.Lists[name]
}
