package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"workhub/internal/db"
	"workhub/internal/domain"
)

type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

// ErrNotFound is domain.ErrNotFound so lifecycle code can match it unchanged.
var ErrNotFound = domain.ErrNotFound

// TimeLayout is fixed-width so stored timestamps compare lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(query string) string {
	return r.Dialect.Rebind(query)
}

func (r Repo) on(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode ids: %w", err)
	}
	return string(data), nil
}

func decodeIDs(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode ids: %w", err)
	}
	return ids, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// lifecycleColumns is appended to every entity select.
const lifecycleColumns = "active,inactive_since,inactivated_by,restored_since,restored_by"

type lifecycleRow struct {
	active                       int
	inactiveSince, restoredSince sql.NullString
	inactivatedBy, restoredBy    sql.NullString
}

func (l *lifecycleRow) dest() []any {
	return []any{&l.active, &l.inactiveSince, &l.inactivatedBy, &l.restoredSince, &l.restoredBy}
}

func (l *lifecycleRow) lifecycle() (domain.Lifecycle, error) {
	lc := domain.Lifecycle{Active: l.active != 0}
	if l.inactiveSince.Valid {
		t, err := parseTime(l.inactiveSince.String)
		if err != nil {
			return lc, fmt.Errorf("inactive_since: %w", err)
		}
		lc.InactiveSince = &t
	}
	if l.restoredSince.Valid {
		t, err := parseTime(l.restoredSince.String)
		if err != nil {
			return lc, fmt.Errorf("restored_since: %w", err)
		}
		lc.RestoredSince = &t
	}
	lc.InactivatedBy = stringPtr(l.inactivatedBy)
	lc.RestoredBy = stringPtr(l.restoredBy)
	return lc, nil
}

func lifecycleArgs(lc domain.Lifecycle) []any {
	active := 0
	if lc.Active {
		active = 1
	}
	return []any{active, timeArg(lc.InactiveSince), nullableStringPtr(lc.InactivatedBy), timeArg(lc.RestoredSince), nullableStringPtr(lc.RestoredBy)}
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}
