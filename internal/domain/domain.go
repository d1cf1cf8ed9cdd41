package domain

type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
	Lifecycle
}

type Department struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	Name           string  `json:"name"`
	HeadID         *string `json:"head_id,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	Lifecycle
}

type User struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	DepartmentID   string `json:"department_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	Lifecycle
}

type Vendor struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	Lifecycle
}

type Material struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	DepartmentID   string  `json:"department_id"`
	VendorID       *string `json:"vendor_id,omitempty"`
	Name           string  `json:"name"`
	UnitPrice      float64 `json:"unit_price"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	Lifecycle
}

type Task struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	DepartmentID   string   `json:"department_id"`
	Kind           string   `json:"kind" enum:"routine,project"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	VendorID       *string  `json:"vendor_id,omitempty"`
	WatcherIDs     []string `json:"watcher_ids,omitempty"`
	AssigneeIDs    []string `json:"assignee_ids,omitempty"`
	MaterialIDs    []string `json:"material_ids,omitempty"`
	CreatedBy      string   `json:"created_by"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	Lifecycle
}

type Activity struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	TaskID         string `json:"task_id"`
	Summary        string `json:"summary"`
	CreatedBy      string `json:"created_by"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	Lifecycle
}

type Comment struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	ParentID       string     `json:"parent_id"`
	ParentType     EntityType `json:"parent_type" enum:"task,activity,comment"`
	Body           string     `json:"body"`
	MentionIDs     []string   `json:"mention_ids,omitempty"`
	AuthorID       string     `json:"author_id"`
	CreatedAt      string     `json:"created_at" format:"date-time"`
	Lifecycle
}

type Attachment struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	ParentID       string     `json:"parent_id"`
	ParentType     EntityType `json:"parent_type" enum:"task,activity,comment"`
	FileName       string     `json:"file_name"`
	URL            string     `json:"url"`
	UploadedBy     string     `json:"uploaded_by"`
	CreatedAt      string     `json:"created_at" format:"date-time"`
	Lifecycle
}

type Notification struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	RecipientID    string  `json:"recipient_id"`
	TaskID         *string `json:"task_id,omitempty"`
	Message        string  `json:"message"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	Lifecycle
}

type Event struct {
	ID             int64  `json:"id"`
	TS             string `json:"ts" format:"date-time"`
	Type           string `json:"type"`
	OrganizationID string `json:"organization_id,omitempty"`
	EntityKind     string `json:"entity_kind"`
	EntityID       string `json:"entity_id,omitempty"`
	ActorID        string `json:"actor_id"`
	Payload        string `json:"payload_json"`
}

type APIKey struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	// Prefix is the leading part of the raw key, shown in listings.
	Prefix     string  `json:"prefix,omitempty"`
	KeyHash    string  `json:"-"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	LastUsedAt *string `json:"last_used_at,omitempty" format:"date-time"`
}
