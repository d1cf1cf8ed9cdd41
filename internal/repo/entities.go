package repo

import (
	"context"
	"database/sql"
	"fmt"

	"workhub/internal/domain"
)

const lifecyclePlaceholders = "?,?,?,?,?"

func (r Repo) insert(ctx context.Context, tx *sql.Tx, table, columns, placeholders string, lc domain.Lifecycle, args ...any) error {
	query := fmt.Sprintf(`INSERT INTO %s(%s,%s) VALUES (%s,%s)`, table, columns, lifecycleColumns, placeholders, lifecyclePlaceholders)
	args = append(args, lifecycleArgs(lc)...)
	_, err := tx.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (r Repo) InsertOrganization(ctx context.Context, tx *sql.Tx, o domain.Organization) error {
	return r.insert(ctx, tx, "organizations", "id,name,created_at", "?,?,?", o.Lifecycle,
		o.ID, o.Name, o.CreatedAt)
}

func (r Repo) GetOrganization(ctx context.Context, tx *sql.Tx, id string) (domain.Organization, error) {
	var o domain.Organization
	var lr lifecycleRow
	err := r.on(tx).QueryRowContext(ctx, r.q(`SELECT id,name,created_at,`+lifecycleColumns+` FROM organizations WHERE id=?`), id).
		Scan(append([]any{&o.ID, &o.Name, &o.CreatedAt}, lr.dest()...)...)
	if err != nil {
		return o, notFound(err)
	}
	o.Lifecycle, err = lr.lifecycle()
	return o, err
}

func (r Repo) InsertDepartment(ctx context.Context, tx *sql.Tx, d domain.Department) error {
	return r.insert(ctx, tx, "departments", "id,organization_id,name,head_id,created_at", "?,?,?,?,?", d.Lifecycle,
		d.ID, d.OrganizationID, d.Name, nullableStringPtr(d.HeadID), d.CreatedAt)
}

func (r Repo) GetDepartment(ctx context.Context, tx *sql.Tx, id string) (domain.Department, error) {
	var d domain.Department
	var head sql.NullString
	var lr lifecycleRow
	err := r.on(tx).QueryRowContext(ctx, r.q(`SELECT id,organization_id,name,head_id,created_at,`+lifecycleColumns+` FROM departments WHERE id=?`), id).
		Scan(append([]any{&d.ID, &d.OrganizationID, &d.Name, &head, &d.CreatedAt}, lr.dest()...)...)
	if err != nil {
		return d, notFound(err)
	}
	d.HeadID = stringPtr(head)
	d.Lifecycle, err = lr.lifecycle()
	return d, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	return r.insert(ctx, tx, "users", "id,organization_id,department_id,name,email,created_at", "?,?,?,?,?,?", u.Lifecycle,
		u.ID, u.OrganizationID, u.DepartmentID, u.Name, u.Email, u.CreatedAt)
}

func (r Repo) GetUser(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	var u domain.User
	var lr lifecycleRow
	err := r.on(tx).QueryRowContext(ctx, r.q(`SELECT id,organization_id,department_id,name,email,created_at,`+lifecycleColumns+` FROM users WHERE id=?`), id).
		Scan(append([]any{&u.ID, &u.OrganizationID, &u.DepartmentID, &u.Name, &u.Email, &u.CreatedAt}, lr.dest()...)...)
	if err != nil {
		return u, notFound(err)
	}
	u.Lifecycle, err = lr.lifecycle()
	return u, err
}

func (r Repo) InsertVendor(ctx context.Context, tx *sql.Tx, v domain.Vendor) error {
	return r.insert(ctx, tx, "vendors", "id,organization_id,name,created_at", "?,?,?,?", v.Lifecycle,
		v.ID, v.OrganizationID, v.Name, v.CreatedAt)
}

func (r Repo) GetVendor(ctx context.Context, tx *sql.Tx, id string) (domain.Vendor, error) {
	var v domain.Vendor
	var lr lifecycleRow
	err := r.on(tx).QueryRowContext(ctx, r.q(`SELECT id,organization_id,name,created_at,`+lifecycleColumns+` FROM vendors WHERE id=?`), id).
		Scan(append([]any{&v.ID, &v.OrganizationID, &v.Name, &v.CreatedAt}, lr.dest()...)...)
	if err != nil {
		return v, notFound(err)
	}
	v.Lifecycle, err = lr.lifecycle()
	return v, err
}

func (r Repo) InsertMaterial(ctx context.Context, tx *sql.Tx, m domain.Material) error {
	return r.insert(ctx, tx, "materials", "id,organization_id,department_id,vendor_id,name,unit_price,created_at", "?,?,?,?,?,?,?", m.Lifecycle,
		m.ID, m.OrganizationID, m.DepartmentID, nullableStringPtr(m.VendorID), m.Name, m.UnitPrice, m.CreatedAt)
}

func (r Repo) GetMaterial(ctx context.Context, tx *sql.Tx, id string) (domain.Material, error) {
	var m domain.Material
	var vendor sql.NullString
	var lr lifecycleRow
	err := r.on(tx).QueryRowContext(ctx, r.q(`SELECT id,organization_id,department_id,vendor_id,name,unit_price,created_at,`+lifecycleColumns+` FROM materials WHERE id=?`), id).
		Scan(append([]any{&m.ID, &m.OrganizationID, &m.DepartmentID, &vendor, &m.Name, &m.UnitPrice, &m.CreatedAt}, lr.dest()...)...)
	if err != nil {
		return m, notFound(err)
	}
	m.VendorID = stringPtr(vendor)
	m.Lifecycle, err = lr.lifecycle()
	return m, err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	watchers, err := encodeIDs(t.WatcherIDs)
	if err != nil {
		return err
	}
	assignees, err := encodeIDs(t.AssigneeIDs)
	if err != nil {
		return err
	}
	materials, err := encodeIDs(t.MaterialIDs)
	if err != nil {
		return err
	}
	return r.insert(ctx, tx, "tasks",
		"id,organization_id,department_id,kind,title,description,vendor_id,watcher_ids,assignee_ids,material_ids,created_by,created_at",
		"?,?,?,?,?,?,?,?,?,?,?,?", t.Lifecycle,
		t.ID, t.OrganizationID, t.DepartmentID, t.Kind, t.Title, t.Description, nullableStringPtr(t.VendorID),
		watchers, assignees, materials, t.CreatedBy, t.CreatedAt)
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	var t domain.Task
	var vendor sql.NullString
	var watchers, assignees, materials string
	var lr lifecycleRow
	err := r.on(tx).QueryRowContext(ctx, r.q(`SELECT id,organization_id,department_id,kind,title,description,vendor_id,watcher_ids,assignee_ids,material_ids,created_by,created_at,`+lifecycleColumns+` FROM tasks WHERE id=?`), id).
		Scan(append([]any{&t.ID, &t.OrganizationID, &t.DepartmentID, &t.Kind, &t.Title, &t.Description, &vendor,
			&watchers, &assignees, &materials, &t.CreatedBy, &t.CreatedAt}, lr.dest()...)...)
	if err != nil {
		return t, notFound(err)
	}
	t.VendorID = stringPtr(vendor)
	if t.WatcherIDs, err = decodeIDs(watchers); err != nil {
		return t, err
	}
	if t.AssigneeIDs, err = decodeIDs(assignees); err != nil {
		return t, err
	}
	if t.MaterialIDs, err = decodeIDs(materials); err != nil {
		return t, err
	}
	t.Lifecycle, err = lr.lifecycle()
	return t, err
}

func (r Repo) InsertActivity(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	return r.insert(ctx, tx, "activities", "id,organization_id,task_id,summary,created_by,created_at", "?,?,?,?,?,?", a.Lifecycle,
		a.ID, a.OrganizationID, a.TaskID, a.Summary, a.CreatedBy, a.CreatedAt)
}

func (r Repo) GetActivity(ctx context.Context, tx *sql.Tx, id string) (domain.Activity, error) {
	var a domain.Activity
	var lr lifecycleRow
	err := r.on(tx).QueryRowContext(ctx, r.q(`SELECT id,organization_id,task_id,summary,created_by,created_at,`+lifecycleColumns+` FROM activities WHERE id=?`), id).
		Scan(append([]any{&a.ID, &a.OrganizationID, &a.TaskID, &a.Summary, &a.CreatedBy, &a.CreatedAt}, lr.dest()...)...)
	if err != nil {
		return a, notFound(err)
	}
	a.Lifecycle, err = lr.lifecycle()
	return a, err
}

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	mentions, err := encodeIDs(c.MentionIDs)
	if err != nil {
		return err
	}
	return r.insert(ctx, tx, "comments", "id,organization_id,parent_id,parent_type,body,mention_ids,author_id,created_at", "?,?,?,?,?,?,?,?", c.Lifecycle,
		c.ID, c.OrganizationID, c.ParentID, string(c.ParentType), c.Body, mentions, c.AuthorID, c.CreatedAt)
}

func (r Repo) GetComment(ctx context.Context, tx *sql.Tx, id string) (domain.Comment, error) {
	var c domain.Comment
	var parentType, mentions string
	var lr lifecycleRow
	err := r.on(tx).QueryRowContext(ctx, r.q(`SELECT id,organization_id,parent_id,parent_type,body,mention_ids,author_id,created_at,`+lifecycleColumns+` FROM comments WHERE id=?`), id).
		Scan(append([]any{&c.ID, &c.OrganizationID, &c.ParentID, &parentType, &c.Body, &mentions, &c.AuthorID, &c.CreatedAt}, lr.dest()...)...)
	if err != nil {
		return c, notFound(err)
	}
	c.ParentType = domain.EntityType(parentType)
	if c.MentionIDs, err = decodeIDs(mentions); err != nil {
		return c, err
	}
	c.Lifecycle, err = lr.lifecycle()
	return c, err
}

func (r Repo) InsertAttachment(ctx context.Context, tx *sql.Tx, a domain.Attachment) error {
	return r.insert(ctx, tx, "attachments", "id,organization_id,parent_id,parent_type,file_name,url,uploaded_by,created_at", "?,?,?,?,?,?,?,?", a.Lifecycle,
		a.ID, a.OrganizationID, a.ParentID, string(a.ParentType), a.FileName, a.URL, a.UploadedBy, a.CreatedAt)
}

func (r Repo) GetAttachment(ctx context.Context, tx *sql.Tx, id string) (domain.Attachment, error) {
	var a domain.Attachment
	var parentType string
	var lr lifecycleRow
	err := r.on(tx).QueryRowContext(ctx, r.q(`SELECT id,organization_id,parent_id,parent_type,file_name,url,uploaded_by,created_at,`+lifecycleColumns+` FROM attachments WHERE id=?`), id).
		Scan(append([]any{&a.ID, &a.OrganizationID, &a.ParentID, &parentType, &a.FileName, &a.URL, &a.UploadedBy, &a.CreatedAt}, lr.dest()...)...)
	if err != nil {
		return a, notFound(err)
	}
	a.ParentType = domain.EntityType(parentType)
	a.Lifecycle, err = lr.lifecycle()
	return a, err
}

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	return r.insert(ctx, tx, "notifications", "id,organization_id,recipient_id,task_id,message,created_at", "?,?,?,?,?,?", n.Lifecycle,
		n.ID, n.OrganizationID, n.RecipientID, nullableStringPtr(n.TaskID), n.Message, n.CreatedAt)
}

func (r Repo) GetNotification(ctx context.Context, tx *sql.Tx, id string) (domain.Notification, error) {
	var n domain.Notification
	var task sql.NullString
	var lr lifecycleRow
	err := r.on(tx).QueryRowContext(ctx, r.q(`SELECT id,organization_id,recipient_id,task_id,message,created_at,`+lifecycleColumns+` FROM notifications WHERE id=?`), id).
		Scan(append([]any{&n.ID, &n.OrganizationID, &n.RecipientID, &task, &n.Message, &n.CreatedAt}, lr.dest()...)...)
	if err != nil {
		return n, notFound(err)
	}
	n.TaskID = stringPtr(task)
	n.Lifecycle, err = lr.lifecycle()
	return n, err
}

// GetEntity loads any entity by ref, inactive ones included.
func (r Repo) GetEntity(ctx context.Context, tx *sql.Tx, ref domain.Ref) (any, error) {
	switch ref.Type {
	case domain.TypeOrganization:
		return r.GetOrganization(ctx, tx, ref.ID)
	case domain.TypeDepartment:
		return r.GetDepartment(ctx, tx, ref.ID)
	case domain.TypeUser:
		return r.GetUser(ctx, tx, ref.ID)
	case domain.TypeVendor:
		return r.GetVendor(ctx, tx, ref.ID)
	case domain.TypeMaterial:
		return r.GetMaterial(ctx, tx, ref.ID)
	case domain.TypeTask:
		return r.GetTask(ctx, tx, ref.ID)
	case domain.TypeActivity:
		return r.GetActivity(ctx, tx, ref.ID)
	case domain.TypeComment:
		return r.GetComment(ctx, tx, ref.ID)
	case domain.TypeAttachment:
		return r.GetAttachment(ctx, tx, ref.ID)
	case domain.TypeNotification:
		return r.GetNotification(ctx, tx, ref.ID)
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidRef, ref.Type)
	}
}
