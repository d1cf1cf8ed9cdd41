package server

import (
	"encoding/json"

	"workhub/internal/domain"
	"workhub/internal/lifecycle"
)

// Request payloads

type CreateOrganizationRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type CreateDepartmentRequest struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	HeadID string `json:"head_id,omitempty"`
}

type CreateUserRequest struct {
	ID           string `json:"id,omitempty"`
	DepartmentID string `json:"department_id"`
	Name         string `json:"name"`
	Email        string `json:"email" format:"email"`
}

type CreateVendorRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type CreateMaterialRequest struct {
	ID           string  `json:"id,omitempty"`
	DepartmentID string  `json:"department_id"`
	VendorID     string  `json:"vendor_id,omitempty"`
	Name         string  `json:"name"`
	UnitPrice    float64 `json:"unit_price,omitempty"`
}

type CreateTaskRequest struct {
	ID           string   `json:"id,omitempty"`
	DepartmentID string   `json:"department_id"`
	Kind         string   `json:"kind,omitempty" enum:"routine,project"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	VendorID     string   `json:"vendor_id,omitempty"`
	WatcherIDs   []string `json:"watcher_ids,omitempty"`
	AssigneeIDs  []string `json:"assignee_ids,omitempty"`
	MaterialIDs  []string `json:"material_ids,omitempty"`
}

type CreateActivityRequest struct {
	ID      string `json:"id,omitempty"`
	Summary string `json:"summary"`
}

type CreateCommentRequest struct {
	ID         string   `json:"id,omitempty"`
	ParentType string   `json:"parent_type" enum:"task,activity,comment"`
	ParentID   string   `json:"parent_id"`
	Body       string   `json:"body"`
	MentionIDs []string `json:"mention_ids,omitempty"`
}

type CreateAttachmentRequest struct {
	ID         string `json:"id,omitempty"`
	ParentType string `json:"parent_type" enum:"task,activity,comment"`
	ParentID   string `json:"parent_id"`
	FileName   string `json:"file_name"`
	URL        string `json:"url" format:"uri"`
}

// Response payloads

type CommentResponse struct {
	Comment       domain.Comment        `json:"comment"`
	Notifications []domain.Notification `json:"notifications"`
}

type EntityResponse struct {
	Type   domain.EntityType `json:"type"`
	Entity any               `json:"entity"`
}

type RefResponse struct {
	Type domain.EntityType `json:"type"`
	ID   string            `json:"id"`
}

type CascadeResponse struct {
	Root        RefResponse   `json:"root"`
	Visited     []RefResponse `json:"visited"`
	Deactivated []RefResponse `json:"deactivated"`
}

type RestoreResponse struct {
	Ref      RefResponse         `json:"ref"`
	Restored bool                `json:"restored"`
	Dropped  map[string][]string `json:"dropped,omitempty"`
}

type RootResponse struct {
	Ref    RefResponse `json:"ref"`
	Found  bool        `json:"found"`
	TaskID string      `json:"task_id,omitempty"`
}

type PurgeResponse struct {
	DryRun bool           `json:"dry_run"`
	Counts map[string]int `json:"counts"`
	Purged []RefResponse  `json:"purged"`
}

type EventResponse struct {
	ID             int64          `json:"id"`
	TS             string         `json:"ts" format:"date-time"`
	Type           string         `json:"type"`
	OrganizationID string         `json:"organization_id,omitempty"`
	EntityKind     string         `json:"entity_kind"`
	EntityID       string         `json:"entity_id,omitempty"`
	ActorID        string         `json:"actor_id"`
	Payload        map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func refResponse(r domain.Ref) RefResponse {
	return RefResponse{Type: r.Type, ID: r.ID}
}

func refResponses(refs []domain.Ref) []RefResponse {
	out := make([]RefResponse, 0, len(refs))
	for _, r := range refs {
		out = append(out, refResponse(r))
	}
	return out
}

func cascadeResponse(c lifecycle.Cascade) CascadeResponse {
	return CascadeResponse{
		Root:        refResponse(c.Root),
		Visited:     refResponses(c.Visited),
		Deactivated: refResponses(c.Deactivated),
	}
}

func restoreResponse(r lifecycle.Restoration) RestoreResponse {
	return RestoreResponse{Ref: refResponse(r.Ref), Restored: r.Restored, Dropped: r.Dropped}
}

func purgeResponse(p lifecycle.PurgeReport) PurgeResponse {
	counts := make(map[string]int, len(p.Counts))
	for t, n := range p.Counts {
		counts[string(t)] = n
	}
	return PurgeResponse{DryRun: p.DryRun, Counts: counts, Purged: refResponses(p.Purged)}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:             e.ID,
		TS:             e.TS,
		Type:           e.Type,
		OrganizationID: e.OrganizationID,
		EntityKind:     e.EntityKind,
		EntityID:       e.EntityID,
		ActorID:        e.ActorID,
		Payload:        decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
