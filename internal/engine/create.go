package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"workhub/internal/domain"
	"workhub/internal/events"
	"workhub/internal/repo"
)

func validate(v validation.Validatable) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return nil
}

func newID(id string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return uuid.NewString()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// requireActive loads ref and fails unless it exists, is active and belongs
// to org. It returns the record's organization.
func (e Engine) requireActive(ctx context.Context, store *repo.TxStore, ref domain.Ref, org string) (string, error) {
	rec, err := store.Lookup(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("%s: %w", ref, err)
	}
	if !rec.Lifecycle.IsActive() {
		return "", fmt.Errorf("%w: %s", domain.ErrInactiveParent, ref)
	}
	owner, err := store.OrganizationOf(ctx, ref)
	if err != nil {
		return "", err
	}
	if org != "" && owner != org {
		return "", fmt.Errorf("%w: %s belongs to another organization", domain.ErrInvalidRef, ref)
	}
	return owner, nil
}

func (e Engine) created(ctx context.Context, tx *sql.Tx, org string, ref domain.Ref, actorID string, payload events.EventPayload) error {
	return e.Events.Append(ctx, tx, events.Type(string(ref.Type), events.ActionCreated), org, string(ref.Type), ref.ID, actorID, payload)
}

type OrganizationCreateOptions struct {
	ID      string
	Name    string
	ActorID string
}

func (o OrganizationCreateOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&o.ActorID, validation.Required),
	)
}

func (e Engine) CreateOrganization(ctx context.Context, opts OrganizationCreateOptions) (domain.Organization, error) {
	if err := validate(opts); err != nil {
		return domain.Organization{}, err
	}
	o := domain.Organization{ID: newID(opts.ID), Name: opts.Name, CreatedAt: e.timestamp(), Lifecycle: domain.NewLifecycle()}
	err := e.inTx(ctx, func(tx *sql.Tx, _ *repo.TxStore) error {
		if err := e.Repo.InsertOrganization(ctx, tx, o); err != nil {
			return err
		}
		return e.created(ctx, tx, o.ID, domain.Ref{Type: domain.TypeOrganization, ID: o.ID}, opts.ActorID, events.EventPayload{"name": o.Name})
	})
	return o, err
}

type DepartmentCreateOptions struct {
	ID             string
	OrganizationID string
	Name           string
	HeadID         string
	ActorID        string
}

func (o DepartmentCreateOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.OrganizationID, validation.Required),
		validation.Field(&o.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&o.ActorID, validation.Required),
	)
}

func (e Engine) CreateDepartment(ctx context.Context, opts DepartmentCreateOptions) (domain.Department, error) {
	if err := validate(opts); err != nil {
		return domain.Department{}, err
	}
	d := domain.Department{
		ID:             newID(opts.ID),
		OrganizationID: opts.OrganizationID,
		Name:           opts.Name,
		HeadID:         optionalString(opts.HeadID),
		CreatedAt:      e.timestamp(),
		Lifecycle:      domain.NewLifecycle(),
	}
	err := e.inTx(ctx, func(tx *sql.Tx, store *repo.TxStore) error {
		if _, err := e.requireActive(ctx, store, domain.Ref{Type: domain.TypeOrganization, ID: d.OrganizationID}, d.OrganizationID); err != nil {
			return err
		}
		if d.HeadID != nil {
			if _, err := e.requireActive(ctx, store, domain.Ref{Type: domain.TypeUser, ID: *d.HeadID}, d.OrganizationID); err != nil {
				return err
			}
		}
		if err := e.Repo.InsertDepartment(ctx, tx, d); err != nil {
			return err
		}
		return e.created(ctx, tx, d.OrganizationID, domain.Ref{Type: domain.TypeDepartment, ID: d.ID}, opts.ActorID, events.EventPayload{"name": d.Name})
	})
	return d, err
}

type UserCreateOptions struct {
	ID             string
	OrganizationID string
	DepartmentID   string
	Name           string
	Email          string
	ActorID        string
}

func (o UserCreateOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.OrganizationID, validation.Required),
		validation.Field(&o.DepartmentID, validation.Required),
		validation.Field(&o.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&o.Email, validation.Required, is.EmailFormat),
		validation.Field(&o.ActorID, validation.Required),
	)
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	if err := validate(opts); err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:             newID(opts.ID),
		OrganizationID: opts.OrganizationID,
		DepartmentID:   opts.DepartmentID,
		Name:           opts.Name,
		Email:          opts.Email,
		CreatedAt:      e.timestamp(),
		Lifecycle:      domain.NewLifecycle(),
	}
	err := e.inTx(ctx, func(tx *sql.Tx, store *repo.TxStore) error {
		if _, err := e.requireActive(ctx, store, domain.Ref{Type: domain.TypeDepartment, ID: u.DepartmentID}, u.OrganizationID); err != nil {
			return err
		}
		if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
			return err
		}
		return e.created(ctx, tx, u.OrganizationID, domain.Ref{Type: domain.TypeUser, ID: u.ID}, opts.ActorID, events.EventPayload{"department_id": u.DepartmentID})
	})
	return u, err
}

type VendorCreateOptions struct {
	ID             string
	OrganizationID string
	Name           string
	ActorID        string
}

func (o VendorCreateOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.OrganizationID, validation.Required),
		validation.Field(&o.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&o.ActorID, validation.Required),
	)
}

func (e Engine) CreateVendor(ctx context.Context, opts VendorCreateOptions) (domain.Vendor, error) {
	if err := validate(opts); err != nil {
		return domain.Vendor{}, err
	}
	v := domain.Vendor{ID: newID(opts.ID), OrganizationID: opts.OrganizationID, Name: opts.Name, CreatedAt: e.timestamp(), Lifecycle: domain.NewLifecycle()}
	err := e.inTx(ctx, func(tx *sql.Tx, store *repo.TxStore) error {
		if _, err := e.requireActive(ctx, store, domain.Ref{Type: domain.TypeOrganization, ID: v.OrganizationID}, v.OrganizationID); err != nil {
			return err
		}
		if err := e.Repo.InsertVendor(ctx, tx, v); err != nil {
			return err
		}
		return e.created(ctx, tx, v.OrganizationID, domain.Ref{Type: domain.TypeVendor, ID: v.ID}, opts.ActorID, events.EventPayload{"name": v.Name})
	})
	return v, err
}

type MaterialCreateOptions struct {
	ID             string
	OrganizationID string
	DepartmentID   string
	VendorID       string
	Name           string
	UnitPrice      float64
	ActorID        string
}

func (o MaterialCreateOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.OrganizationID, validation.Required),
		validation.Field(&o.DepartmentID, validation.Required),
		validation.Field(&o.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&o.UnitPrice, validation.Min(0.0)),
		validation.Field(&o.ActorID, validation.Required),
	)
}

func (e Engine) CreateMaterial(ctx context.Context, opts MaterialCreateOptions) (domain.Material, error) {
	if err := validate(opts); err != nil {
		return domain.Material{}, err
	}
	m := domain.Material{
		ID:             newID(opts.ID),
		OrganizationID: opts.OrganizationID,
		DepartmentID:   opts.DepartmentID,
		VendorID:       optionalString(opts.VendorID),
		Name:           opts.Name,
		UnitPrice:      opts.UnitPrice,
		CreatedAt:      e.timestamp(),
		Lifecycle:      domain.NewLifecycle(),
	}
	err := e.inTx(ctx, func(tx *sql.Tx, store *repo.TxStore) error {
		if _, err := e.requireActive(ctx, store, domain.Ref{Type: domain.TypeDepartment, ID: m.DepartmentID}, m.OrganizationID); err != nil {
			return err
		}
		if m.VendorID != nil {
			if _, err := e.requireActive(ctx, store, domain.Ref{Type: domain.TypeVendor, ID: *m.VendorID}, m.OrganizationID); err != nil {
				return err
			}
		}
		if err := e.Repo.InsertMaterial(ctx, tx, m); err != nil {
			return err
		}
		return e.created(ctx, tx, m.OrganizationID, domain.Ref{Type: domain.TypeMaterial, ID: m.ID}, opts.ActorID, events.EventPayload{"name": m.Name})
	})
	return m, err
}

type TaskCreateOptions struct {
	ID             string
	OrganizationID string
	DepartmentID   string
	Kind           string
	Title          string
	Description    string
	VendorID       string
	WatcherIDs     []string
	AssigneeIDs    []string
	MaterialIDs    []string
	ActorID        string
}

func (o TaskCreateOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.OrganizationID, validation.Required),
		validation.Field(&o.DepartmentID, validation.Required),
		validation.Field(&o.Kind, validation.In("routine", "project")),
		validation.Field(&o.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&o.WatcherIDs, validation.Each(validation.Required)),
		validation.Field(&o.AssigneeIDs, validation.Each(validation.Required)),
		validation.Field(&o.MaterialIDs, validation.Each(validation.Required)),
		validation.Field(&o.ActorID, validation.Required),
	)
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Kind == "" {
		opts.Kind = "routine"
	}
	if err := validate(opts); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:             newID(opts.ID),
		OrganizationID: opts.OrganizationID,
		DepartmentID:   opts.DepartmentID,
		Kind:           opts.Kind,
		Title:          opts.Title,
		Description:    opts.Description,
		VendorID:       optionalString(opts.VendorID),
		WatcherIDs:     dedupe(opts.WatcherIDs),
		AssigneeIDs:    dedupe(opts.AssigneeIDs),
		MaterialIDs:    dedupe(opts.MaterialIDs),
		CreatedBy:      opts.ActorID,
		CreatedAt:      e.timestamp(),
		Lifecycle:      domain.NewLifecycle(),
	}
	err := e.inTx(ctx, func(tx *sql.Tx, store *repo.TxStore) error {
		if _, err := e.requireActive(ctx, store, domain.Ref{Type: domain.TypeDepartment, ID: t.DepartmentID}, t.OrganizationID); err != nil {
			return err
		}
		if t.VendorID != nil {
			if _, err := e.requireActive(ctx, store, domain.Ref{Type: domain.TypeVendor, ID: *t.VendorID}, t.OrganizationID); err != nil {
				return err
			}
		}
		refs := map[domain.EntityType][]string{
			domain.TypeUser:     append(append([]string(nil), t.WatcherIDs...), t.AssigneeIDs...),
			domain.TypeMaterial: t.MaterialIDs,
		}
		for _, typ := range []domain.EntityType{domain.TypeUser, domain.TypeMaterial} {
			for _, id := range refs[typ] {
				if _, err := e.requireActive(ctx, store, domain.Ref{Type: typ, ID: id}, t.OrganizationID); err != nil {
					return err
				}
			}
		}
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return err
		}
		return e.created(ctx, tx, t.OrganizationID, domain.Ref{Type: domain.TypeTask, ID: t.ID}, opts.ActorID, events.EventPayload{"title": t.Title, "kind": t.Kind})
	})
	return t, err
}

type ActivityCreateOptions struct {
	ID      string
	TaskID  string
	Summary string
	ActorID string
}

func (o ActivityCreateOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.TaskID, validation.Required),
		validation.Field(&o.Summary, validation.Required, validation.Length(1, 500)),
		validation.Field(&o.ActorID, validation.Required),
	)
}

func (e Engine) CreateActivity(ctx context.Context, opts ActivityCreateOptions) (domain.Activity, error) {
	if err := validate(opts); err != nil {
		return domain.Activity{}, err
	}
	a := domain.Activity{ID: newID(opts.ID), TaskID: opts.TaskID, Summary: opts.Summary, CreatedBy: opts.ActorID, CreatedAt: e.timestamp(), Lifecycle: domain.NewLifecycle()}
	err := e.inTx(ctx, func(tx *sql.Tx, store *repo.TxStore) error {
		org, err := e.requireActive(ctx, store, domain.Ref{Type: domain.TypeTask, ID: a.TaskID}, "")
		if err != nil {
			return err
		}
		a.OrganizationID = org
		if err := e.Repo.InsertActivity(ctx, tx, a); err != nil {
			return err
		}
		return e.created(ctx, tx, org, domain.Ref{Type: domain.TypeActivity, ID: a.ID}, opts.ActorID, events.EventPayload{"task_id": a.TaskID})
	})
	return a, err
}

var threadParents = []any{string(domain.TypeTask), string(domain.TypeActivity), string(domain.TypeComment)}

type CommentCreateOptions struct {
	ID         string
	ParentID   string
	ParentType string
	Body       string
	MentionIDs []string
	ActorID    string
}

func (o CommentCreateOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.ParentID, validation.Required),
		validation.Field(&o.ParentType, validation.Required, validation.In(threadParents...)),
		validation.Field(&o.Body, validation.Required, validation.Length(1, 10000)),
		validation.Field(&o.MentionIDs, validation.Each(validation.Required)),
		validation.Field(&o.ActorID, validation.Required),
	)
}

// CreateComment adds a comment under a task, activity or comment. Replies are
// capped by the thread depth limit, and every active mentioned user gets a
// notification pointing at the comment's task.
func (e Engine) CreateComment(ctx context.Context, opts CommentCreateOptions) (domain.Comment, []domain.Notification, error) {
	if err := validate(opts); err != nil {
		return domain.Comment{}, nil, err
	}
	parent := domain.Ref{Type: domain.EntityType(opts.ParentType), ID: opts.ParentID}
	c := domain.Comment{
		ID:         newID(opts.ID),
		ParentID:   parent.ID,
		ParentType: parent.Type,
		Body:       opts.Body,
		MentionIDs: dedupe(opts.MentionIDs),
		AuthorID:   opts.ActorID,
		CreatedAt:  e.timestamp(),
		Lifecycle:  domain.NewLifecycle(),
	}
	var notes []domain.Notification
	err := e.inTx(ctx, func(tx *sql.Tx, store *repo.TxStore) error {
		org, err := e.requireActive(ctx, store, parent, "")
		if err != nil {
			return err
		}
		if err := e.Lifecycle.ValidateDepth(ctx, store, parent); err != nil {
			return err
		}
		c.OrganizationID = org
		for _, id := range c.MentionIDs {
			if _, err := e.requireActive(ctx, store, domain.Ref{Type: domain.TypeUser, ID: id}, org); err != nil {
				return err
			}
		}
		if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
			return err
		}
		if err := e.created(ctx, tx, org, domain.Ref{Type: domain.TypeComment, ID: c.ID}, opts.ActorID, events.EventPayload{
			"parent": parent.String(), "mentions": c.MentionIDs,
		}); err != nil {
			return err
		}
		if len(c.MentionIDs) == 0 {
			return nil
		}
		taskID, ok, err := e.Lifecycle.ResolveGroupingRoot(ctx, store, parent)
		if err != nil {
			return err
		}
		for _, userID := range c.MentionIDs {
			n := domain.Notification{
				ID:             uuid.NewString(),
				OrganizationID: org,
				RecipientID:    userID,
				Message:        fmt.Sprintf("%s mentioned you in a comment", opts.ActorID),
				CreatedAt:      c.CreatedAt,
				Lifecycle:      domain.NewLifecycle(),
			}
			if ok {
				n.TaskID = &taskID
			}
			if err := e.Repo.InsertNotification(ctx, tx, n); err != nil {
				return err
			}
			payload := events.EventPayload{"recipient": userID, "comment": c.ID}
			if n.TaskID != nil {
				payload["task"] = *n.TaskID
			}
			if err := e.created(ctx, tx, org, domain.Ref{Type: domain.TypeNotification, ID: n.ID}, opts.ActorID, payload); err != nil {
				return err
			}
			notes = append(notes, n)
		}
		return nil
	})
	if err != nil {
		return domain.Comment{}, nil, err
	}
	return c, notes, nil
}

type AttachmentCreateOptions struct {
	ID         string
	ParentID   string
	ParentType string
	FileName   string
	URL        string
	ActorID    string
}

func (o AttachmentCreateOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.ParentID, validation.Required),
		validation.Field(&o.ParentType, validation.Required, validation.In(threadParents...)),
		validation.Field(&o.FileName, validation.Required, validation.Length(1, 255)),
		validation.Field(&o.URL, validation.Required, is.URL),
		validation.Field(&o.ActorID, validation.Required),
	)
}

func (e Engine) CreateAttachment(ctx context.Context, opts AttachmentCreateOptions) (domain.Attachment, error) {
	if err := validate(opts); err != nil {
		return domain.Attachment{}, err
	}
	parent := domain.Ref{Type: domain.EntityType(opts.ParentType), ID: opts.ParentID}
	a := domain.Attachment{
		ID:         newID(opts.ID),
		ParentID:   parent.ID,
		ParentType: parent.Type,
		FileName:   opts.FileName,
		URL:        opts.URL,
		UploadedBy: opts.ActorID,
		CreatedAt:  e.timestamp(),
		Lifecycle:  domain.NewLifecycle(),
	}
	err := e.inTx(ctx, func(tx *sql.Tx, store *repo.TxStore) error {
		org, err := e.requireActive(ctx, store, parent, "")
		if err != nil {
			return err
		}
		a.OrganizationID = org
		if err := e.Repo.InsertAttachment(ctx, tx, a); err != nil {
			return err
		}
		return e.created(ctx, tx, org, domain.Ref{Type: domain.TypeAttachment, ID: a.ID}, opts.ActorID, events.EventPayload{"parent": parent.String()})
	})
	return a, err
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// IsValidation reports whether err came from input validation.
func IsValidation(err error) bool {
	return errors.Is(err, domain.ErrValidation)
}
