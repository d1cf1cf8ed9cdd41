package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"workhub/internal/db"
)

// Writer appends event rows inside the caller's transaction, so an event
// exists exactly when the change it describes was committed.
type Writer struct {
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

// Event types are "<entity type>.<action>".
const (
	ActionCreated      = "created"
	ActionDeleted      = "deleted"
	ActionRestored     = "restored"
	ActionRefsRepaired = "refs_repaired"
	ActionPurged       = "purged"
)

func Type(entityKind, action string) string {
	return entityKind + "." + action
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, organizationID, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, w.Dialect.Rebind(`INSERT INTO events(ts,type,organization_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`),
		ts, evtType, nullable(organizationID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
