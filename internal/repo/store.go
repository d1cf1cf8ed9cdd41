package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"workhub/internal/domain"
	"workhub/internal/lifecycle"
)

// TxStore is the lifecycle.Store bound to one open transaction. Column names
// come from the validated graph, never from callers.
type TxStore struct {
	repo  Repo
	tx    *sql.Tx
	graph *lifecycle.Graph
}

var _ lifecycle.Store = (*TxStore)(nil)

// Store binds the lifecycle store to tx.
func (r Repo) Store(tx *sql.Tx, g *lifecycle.Graph) *TxStore {
	return &TxStore{repo: r, tx: tx, graph: g}
}

func (s *TxStore) table(t domain.EntityType) (string, error) {
	return s.graph.Table(t)
}

func (s *TxStore) selectRecord(t domain.EntityType) (string, lifecycle.Columns, error) {
	table, err := s.table(t)
	if err != nil {
		return "", lifecycle.Columns{}, err
	}
	cols := s.graph.Columns(t)
	fields := []string{"id", lifecycleColumns}
	fields = append(fields, cols.Scalars...)
	fields = append(fields, cols.Lists...)
	return fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(fields, ","), table), cols, nil
}

type recordScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row recordScanner, t domain.EntityType, cols lifecycle.Columns) (domain.Record, error) {
	rec := domain.Record{Ref: domain.Ref{Type: t}}
	var lr lifecycleRow
	scalars := make([]sql.NullString, len(cols.Scalars))
	lists := make([]sql.NullString, len(cols.Lists))
	dest := append([]any{&rec.Ref.ID}, lr.dest()...)
	for i := range scalars {
		dest = append(dest, &scalars[i])
	}
	for i := range lists {
		dest = append(dest, &lists[i])
	}
	if err := row.Scan(dest...); err != nil {
		return rec, err
	}
	lc, err := lr.lifecycle()
	if err != nil {
		return rec, fmt.Errorf("%s: %w", rec.Ref, err)
	}
	rec.Lifecycle = lc
	if len(scalars) > 0 {
		rec.Fields = make(map[string]string, len(scalars))
		for i, c := range cols.Scalars {
			if scalars[i].Valid {
				rec.Fields[c] = scalars[i].String
			}
		}
	}
	if len(lists) > 0 {
		rec.Lists = make(map[string][]string, len(lists))
		for i, c := range cols.Lists {
			ids, err := decodeIDs(lists[i].String)
			if err != nil {
				return rec, fmt.Errorf("%s.%s: %w", rec.Ref, c, err)
			}
			rec.Lists[c] = ids
		}
	}
	return rec, nil
}

func (s *TxStore) Lookup(ctx context.Context, ref domain.Ref) (domain.Record, error) {
	query, cols, err := s.selectRecord(ref.Type)
	if err != nil {
		return domain.Record{}, err
	}
	row := s.tx.QueryRowContext(ctx, s.repo.q(query+` WHERE id=?`), ref.ID)
	rec, err := scanRecord(row, ref.Type, cols)
	if err != nil {
		return domain.Record{}, notFound(err)
	}
	return rec, nil
}

func (s *TxStore) Children(ctx context.Context, parent domain.Ref, edge lifecycle.Edge) ([]string, error) {
	table, err := s.table(edge.Child)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE %s=?`, table, edge.ForeignKey)
	args := []any{parent.ID}
	if edge.TypeColumn != "" {
		query += fmt.Sprintf(` AND %s=?`, edge.TypeColumn)
		args = append(args, string(parent.Type))
	}
	query += ` ORDER BY created_at, id`
	rows, err := s.tx.QueryContext(ctx, s.repo.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *TxStore) SaveLifecycle(ctx context.Context, ref domain.Ref, lc domain.Lifecycle) error {
	table, err := s.table(ref.Type)
	if err != nil {
		return err
	}
	// The previous state is part of the predicate, so a transition another
	// transaction already committed is not overwritten.
	query := fmt.Sprintf(`UPDATE %s SET active=?, inactive_since=?, inactivated_by=?, restored_since=?, restored_by=? WHERE id=? AND active=?`, table)
	prev := 0
	if !lc.Active {
		prev = 1
	}
	args := append(lifecycleArgs(lc), ref.ID, prev)
	res, err := s.tx.ExecContext(ctx, s.repo.q(query), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists int
	err = s.tx.QueryRowContext(ctx, s.repo.q(fmt.Sprintf(`SELECT 1 FROM %s WHERE id=?`, table)), ref.ID).Scan(&exists)
	if err != nil {
		return notFound(err)
	}
	return fmt.Errorf("%w: %s", domain.ErrConflict, ref)
}

// OrganizationOf returns the tenant a record belongs to.
func (s *TxStore) OrganizationOf(ctx context.Context, ref domain.Ref) (string, error) {
	if ref.Type == domain.TypeOrganization {
		return ref.ID, nil
	}
	table, err := s.table(ref.Type)
	if err != nil {
		return "", err
	}
	var org string
	err = s.tx.QueryRowContext(ctx, s.repo.q(`SELECT organization_id FROM `+table+` WHERE id=?`), ref.ID).Scan(&org)
	if err != nil {
		return "", notFound(err)
	}
	return org, nil
}

func (s *TxStore) SaveRefs(ctx context.Context, ref domain.Ref, field lifecycle.WeakRef, ids []string) error {
	table, err := s.table(ref.Type)
	if err != nil {
		return err
	}
	var value any
	if field.Many {
		encoded, err := encodeIDs(ids)
		if err != nil {
			return err
		}
		value = encoded
	} else if len(ids) > 0 {
		value = ids[0]
	}
	return s.execOne(ctx, fmt.Sprintf(`UPDATE %s SET %s=? WHERE id=?`, table, field.Field), value, ref.ID)
}

func (s *TxStore) InactiveBefore(ctx context.Context, t domain.EntityType, cutoff time.Time) ([]domain.Record, error) {
	query, cols, err := s.selectRecord(t)
	if err != nil {
		return nil, err
	}
	query += ` WHERE active=0 AND inactive_since IS NOT NULL AND inactive_since<? ORDER BY inactive_since, id`
	rows, err := s.tx.QueryContext(ctx, s.repo.q(query), FormatTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows, t, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *TxStore) Remove(ctx context.Context, ref domain.Ref) error {
	table, err := s.table(ref.Type)
	if err != nil {
		return err
	}
	return s.execOne(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=?`, table), ref.ID)
}

func (s *TxStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.tx.ExecContext(ctx, s.repo.q(query), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
