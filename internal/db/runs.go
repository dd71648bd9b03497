package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateRun inserts a run, generating its ID and start time if missing.
func (db *DB) CreateRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	_, err := db.Exec(ctx, `
		INSERT INTO runs (id, business, sheet, started_at, finished_at)
		VALUES (?, ?, ?, ?, NULL)
	`, r.ID, r.Business, r.Sheet, r.StartedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

// FinishRun stamps finished_at on a run.
func (db *DB) FinishRun(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := db.Exec(ctx, `UPDATE runs SET finished_at = ? WHERE id = ?`, now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// RecordResult stores one scenario result.
func (db *DB) RecordResult(ctx context.Context, res *ScenarioResult) error {
	if !res.Status.Valid() {
		return fmt.Errorf("invalid scenario status %q", res.Status)
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	result, err := db.Exec(ctx, `
		INSERT INTO scenario_results (run_id, name, status, business_id, step, actor, expected, actual, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, res.RunID, res.Name, string(res.Status), nullString(res.BusinessID), res.Step, nullString(res.Actor),
		nullString(res.Expected), nullString(res.Actual), nullString(res.Message), res.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording scenario result: %w", err)
	}
	id, err := result.LastInsertId()
	if err == nil {
		res.ID = id
	}
	return nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := db.QueryRow(ctx, `SELECT id, business, sheet, started_at, finished_at FROM runs WHERE id = ?`, id)
	r := &Run{}
	var startedAt string
	var finishedAt sql.NullString
	if err := row.Scan(&r.ID, &r.Business, &r.Sheet, &startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAt.String)
		r.FinishedAt = &t
	}
	return r, nil
}

// ListResults returns a run's scenario results in insertion order.
func (db *DB) ListResults(ctx context.Context, runID string) ([]*ScenarioResult, error) {
	rows, err := db.Query(ctx, `
		SELECT id, run_id, name, status, business_id, step, actor, expected, actual, message, created_at
		FROM scenario_results WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying scenario results: %w", err)
	}
	defer rows.Close()

	var results []*ScenarioResult
	for rows.Next() {
		res := &ScenarioResult{}
		var status, createdAt string
		var businessID, actor, expected, actual, message sql.NullString
		var step sql.NullInt64
		if err := rows.Scan(&res.ID, &res.RunID, &res.Name, &status, &businessID, &step, &actor, &expected, &actual, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning scenario result row: %w", err)
		}
		res.Status = ScenarioStatus(status)
		res.BusinessID = businessID.String
		res.Step = int(step.Int64)
		res.Actor = actor.String
		res.Expected = expected.String
		res.Actual = actual.String
		res.Message = message.String
		res.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scenario results: %w", err)
	}
	return results, nil
}

// ListRuns returns the most recent runs with their result counts.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(ctx, `
		SELECT r.id, r.business, r.sheet, r.started_at, r.finished_at,
		       COALESCE(SUM(CASE WHEN s.status = 'passed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN s.status = 'failed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN s.status = 'errored' THEN 1 ELSE 0 END), 0)
		FROM runs r
		LEFT JOIN scenario_results s ON s.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&s.Run.ID, &s.Run.Business, &s.Run.Sheet, &startedAt, &finishedAt, &s.Passed, &s.Failed, &s.Errored); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		s.Run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if finishedAt.Valid {
			t, _ := time.Parse(time.RFC3339, finishedAt.String)
			s.Run.FinishedAt = &t
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite reports "UNIQUE constraint failed: <table>.<column>"
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
