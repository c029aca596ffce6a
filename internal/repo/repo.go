// Package repo is the data access layer over the local state database.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"aeval/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() string {
	if r.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return r.Now().UTC().Format(time.RFC3339)
}

// GetValue returns the stored value for key or ErrNotFound.
func (r Repo) GetValue(ctx context.Context, key string) (string, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

// SetValue inserts or replaces key.
func (r Repo) SetValue(ctx context.Context, key, value string) error {
	return r.SetValueTx(ctx, nil, key, value)
}

func (r Repo) SetValueTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	const q = `INSERT INTO kv(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, q, key, value, r.now())
	} else {
		_, err = r.DB.ExecContext(ctx, q, key, value, r.now())
	}
	return err
}

func (r Repo) DeleteValue(ctx context.Context, key string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM kv WHERE key=?`, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertEvaluationTx(ctx context.Context, tx *sql.Tx, ev domain.Evaluation) error {
	ids, err := json.Marshal(ev.MetricIDs)
	if err != nil {
		return fmt.Errorf("marshal metric ids: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO evaluations(id,name,description,dataset_id,metric_ids_json,estimated_minutes,estimated_cost_usd,submitted_at) VALUES (?,?,?,?,?,?,?,?)`,
		ev.ID, ev.Name, nullable(ev.Description), ev.DatasetID, string(ids), ev.EstimatedMinutes, ev.EstimatedCostUSD, ev.SubmittedAt)
	return err
}

func (r Repo) GetEvaluation(ctx context.Context, id string) (domain.Evaluation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(description,''),dataset_id,metric_ids_json,estimated_minutes,estimated_cost_usd,submitted_at FROM evaluations WHERE id=?`, id)
	ev, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Evaluation{}, ErrNotFound
	}
	return ev, err
}

// ListEvaluations returns submitted evaluations, newest first.
func (r Repo) ListEvaluations(ctx context.Context, limit int) ([]domain.Evaluation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,''),dataset_id,metric_ids_json,estimated_minutes,estimated_cost_usd,submitted_at FROM evaluations ORDER BY submitted_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Evaluation
	for rows.Next() {
		ev, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(s scanner) (domain.Evaluation, error) {
	var ev domain.Evaluation
	var ids string
	if err := s.Scan(&ev.ID, &ev.Name, &ev.Description, &ev.DatasetID, &ids, &ev.EstimatedMinutes, &ev.EstimatedCostUSD, &ev.SubmittedAt); err != nil {
		return ev, err
	}
	if err := json.Unmarshal([]byte(ids), &ev.MetricIDs); err != nil {
		return ev, fmt.Errorf("decode metric ids: %w", err)
	}
	return ev, nil
}

type EventFilters struct {
	Type       string
	EntityKind string
	EntityID   string
	// Cursor returns events with ids strictly below it when > 0.
	Cursor int64
}

// LatestEvents returns up to limit events, newest first.
func (r Repo) LatestEvents(ctx context.Context, limit int, f EventFilters) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns up to limit events with ids above cursor, oldest
// first.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event id, 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
