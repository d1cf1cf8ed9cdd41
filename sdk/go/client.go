package workhubsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Workhub HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Lifecycle is the soft-delete state every entity carries.
type Lifecycle struct {
	Active        bool    `json:"active"`
	InactiveSince *string `json:"inactive_since,omitempty"`
	InactivatedBy *string `json:"inactivated_by,omitempty"`
	RestoredSince *string `json:"restored_since,omitempty"`
	RestoredBy    *string `json:"restored_by,omitempty"`
}

type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Lifecycle
}

// Task represents the API task model (partial).
type Task struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	DepartmentID   string   `json:"department_id"`
	Kind           string   `json:"kind"`
	Title          string   `json:"title"`
	WatcherIDs     []string `json:"watcher_ids,omitempty"`
	Lifecycle
}

type Comment struct {
	ID         string   `json:"id"`
	ParentID   string   `json:"parent_id"`
	ParentType string   `json:"parent_type"`
	Body       string   `json:"body"`
	MentionIDs []string `json:"mention_ids,omitempty"`
	Lifecycle
}

type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Cascade lists what a delete reached and what it switched off.
type Cascade struct {
	Root        Ref   `json:"root"`
	Visited     []Ref `json:"visited"`
	Deactivated []Ref `json:"deactivated"`
}

type Restoration struct {
	Ref      Ref                 `json:"ref"`
	Restored bool                `json:"restored"`
	Dropped  map[string][]string `json:"dropped,omitempty"`
}

// Entity is a raw entity document tagged with its type.
type Entity struct {
	Type   string          `json:"type"`
	Entity json.RawMessage `json:"entity"`
}

// Lifecycle decodes the lifecycle fields of the wrapped entity.
func (e Entity) Lifecycle() (Lifecycle, error) {
	var lc Lifecycle
	err := json.Unmarshal(e.Entity, &lc)
	return lc, err
}

// Event represents a log entry.
type Event struct {
	ID             int64          `json:"id"`
	TS             string         `json:"ts"`
	Type           string         `json:"type"`
	OrganizationID string         `json:"organization_id"`
	EntityID       string         `json:"entity_id"`
	EntityKind     string         `json:"entity_kind"`
	ActorID        string         `json:"actor_id"`
	Payload        map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code, Message and Details come from the
// error envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateOrganization creates an organization. An empty id lets the server pick one.
func (c *Client) CreateOrganization(ctx context.Context, id, name string) (Organization, error) {
	var resp Organization
	err := c.do(ctx, http.MethodPost, "organizations", map[string]any{"id": id, "name": name}, &resp)
	return resp, err
}

// CreateTask creates a task in a department.
func (c *Client) CreateTask(ctx context.Context, orgID, departmentID, title string, watcherIDs []string) (Task, error) {
	body := map[string]any{
		"department_id": departmentID,
		"title":         title,
	}
	if len(watcherIDs) > 0 {
		body["watcher_ids"] = watcherIDs
	}
	var resp Task
	endpoint := fmt.Sprintf("organizations/%s/tasks", url.PathEscape(orgID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CreateComment comments on a task, activity or comment.
func (c *Client) CreateComment(ctx context.Context, parentType, parentID, text string, mentionIDs []string) (Comment, error) {
	body := map[string]any{
		"parent_type": parentType,
		"parent_id":   parentID,
		"body":        text,
	}
	if len(mentionIDs) > 0 {
		body["mention_ids"] = mentionIDs
	}
	var resp struct {
		Comment Comment `json:"comment"`
	}
	err := c.do(ctx, http.MethodPost, "comments", body, &resp)
	return resp.Comment, err
}

// Get fetches any entity, inactive ones included.
func (c *Client) Get(ctx context.Context, entityType, id string) (Entity, error) {
	var resp Entity
	err := c.do(ctx, http.MethodGet, entityPath(entityType, id), nil, &resp)
	return resp, err
}

// Delete soft-deletes an entity and everything it owns.
func (c *Client) Delete(ctx context.Context, entityType, id string) (Cascade, error) {
	var resp Cascade
	err := c.do(ctx, http.MethodDelete, entityPath(entityType, id), nil, &resp)
	return resp, err
}

// Restore reactivates a single entity. A blocked restore returns an
// *APIError with code restore_blocked.
func (c *Client) Restore(ctx context.Context, entityType, id string) (Restoration, error) {
	var resp Restoration
	err := c.do(ctx, http.MethodPost, entityPath(entityType, id)+"/restore", nil, &resp)
	return resp, err
}

// GroupingRoot returns the task id an entity belongs to, if any.
func (c *Client) GroupingRoot(ctx context.Context, entityType, id string) (string, bool, error) {
	var resp struct {
		Found  bool   `json:"found"`
		TaskID string `json:"task_id"`
	}
	err := c.do(ctx, http.MethodGet, entityPath(entityType, id)+"/root", nil, &resp)
	return resp.TaskID, resp.Found, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func entityPath(entityType, id string) string {
	return fmt.Sprintf("entities/%s/%s", url.PathEscape(entityType), url.PathEscape(id))
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
