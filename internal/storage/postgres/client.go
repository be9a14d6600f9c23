// internal/storage/postgres/client.go
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fawad-mazhar/jobcards/internal/config"
	"github.com/fawad-mazhar/jobcards/internal/lifecycle"
	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/fawad-mazhar/jobcards/internal/storage"
	"github.com/lib/pq"
)

// Schema creates the tables used by the client. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS job_cards (
	id                TEXT PRIMARY KEY,
	work_order_number TEXT NOT NULL,
	vehicle_id        TEXT NOT NULL,
	customer_name     TEXT NOT NULL,
	priority          TEXT NOT NULL,
	status            TEXT NOT NULL,
	template_id       TEXT NOT NULL DEFAULT '',
	created_by        TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	seq             BIGSERIAL,
	id              TEXT PRIMARY KEY,
	job_card_id     TEXT NOT NULL REFERENCES job_cards(id) ON DELETE CASCADE,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL,
	estimated_hours DOUBLE PRECISION NOT NULL,
	status          TEXT NOT NULL,
	is_critical     BOOLEAN NOT NULL DEFAULT FALSE,
	assigned_to     TEXT NOT NULL DEFAULT '',
	completed_by    TEXT NOT NULL DEFAULT '',
	completed_at    TIMESTAMPTZ,
	verified_by     TEXT NOT NULL DEFAULT '',
	verified_at     TIMESTAMPTZ,
	notes           TEXT NOT NULL DEFAULT '',
	parts           JSONB NOT NULL DEFAULT '[]',
	depends_on      TEXT[] NOT NULL DEFAULT '{}',
	version         BIGINT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS tasks_job_card_idx ON tasks (job_card_id, seq);

CREATE TABLE IF NOT EXISTS task_history (
	seq             BIGSERIAL PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	job_card_id     TEXT NOT NULL REFERENCES job_cards(id) ON DELETE CASCADE,
	task_id         TEXT NOT NULL,
	event           TEXT NOT NULL,
	previous_status TEXT NOT NULL DEFAULT '',
	new_status      TEXT NOT NULL DEFAULT '',
	by_actor        TEXT NOT NULL,
	at              TIMESTAMPTZ NOT NULL,
	notes           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS task_history_job_card_idx ON task_history (job_card_id, seq);
`

// Client is a storage.Store backed by PostgreSQL
type Client struct {
	db *sql.DB
}

var _ storage.Store = (*Client)(nil)

func NewClient(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// Migrate creates the schema if it does not exist yet
func (c *Client) Migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Job card related functions

func (c *Client) CreateJobCard(ctx context.Context, jc models.JobCard, m storage.Mutation) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO job_cards
			(id, work_order_number, vehicle_id, customer_name, priority, status, template_id, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

		_, err := tx.ExecContext(ctx, query,
			jc.ID,
			jc.WorkOrderNumber,
			jc.VehicleID,
			jc.CustomerName,
			jc.Priority,
			jc.Status,
			jc.TemplateID,
			jc.CreatedBy,
			jc.CreatedAt,
			jc.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert job card: %w", err)
		}

		m.JobCardID = jc.ID
		return applyMutation(ctx, tx, m)
	})
}

func (c *Client) GetJobCard(ctx context.Context, id string) (*models.JobCard, error) {
	query := `
		SELECT id, work_order_number, vehicle_id, customer_name, priority, status, template_id, created_by, created_at, updated_at
		FROM job_cards
		WHERE id = $1`

	jc, err := scanJobCard(c.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrJobCardNotFound
		}
		return nil, err
	}
	return jc, nil
}

func (c *Client) ListJobCards(ctx context.Context) ([]models.JobCard, error) {
	query := `
		SELECT id, work_order_number, vehicle_id, customer_name, priority, status, template_id, created_by, created_at, updated_at
		FROM job_cards
		ORDER BY created_at, id`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query job cards: %w", err)
	}
	defer rows.Close()

	cards := make([]models.JobCard, 0)
	for rows.Next() {
		jc, err := scanJobCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *jc)
	}
	return cards, rows.Err()
}

// Task related functions

func (c *Client) ListTasks(ctx context.Context, jobCardID string) ([]models.Task, error) {
	query := `
		SELECT id, job_card_id, title, description, category, estimated_hours, status, is_critical,
			assigned_to, completed_by, completed_at, verified_by, verified_at, notes, parts, depends_on,
			version, created_at, updated_at
		FROM tasks
		WHERE job_card_id = $1
		ORDER BY seq`

	rows, err := c.db.QueryContext(ctx, query, jobCardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]models.Task, 0)
	for rows.Next() {
		var (
			task        models.Task
			completedAt sql.NullTime
			verifiedAt  sql.NullTime
			partsJSON   []byte
			dependsOn   pq.StringArray
		)
		err := rows.Scan(
			&task.ID,
			&task.JobCardID,
			&task.Title,
			&task.Description,
			&task.Category,
			&task.EstimatedHours,
			&task.Status,
			&task.IsCritical,
			&task.AssignedTo,
			&task.CompletedBy,
			&completedAt,
			&task.VerifiedBy,
			&verifiedAt,
			&task.Notes,
			&partsJSON,
			&dependsOn,
			&task.Version,
			&task.CreatedAt,
			&task.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if err := json.Unmarshal(partsJSON, &task.Parts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal parts: %w", err)
		}
		task.CompletedAt = timePtr(completedAt)
		task.VerifiedAt = timePtr(verifiedAt)
		if len(dependsOn) > 0 {
			task.DependsOn = []string(dependsOn)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// History related functions

func (c *Client) ListHistory(ctx context.Context, jobCardID string) ([]models.HistoryEntry, error) {
	query := `
		SELECT id, job_card_id, task_id, event, previous_status, new_status, by_actor, at, notes
		FROM task_history
		WHERE job_card_id = $1
		ORDER BY seq`

	rows, err := c.db.QueryContext(ctx, query, jobCardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.HistoryEntry, 0)
	for rows.Next() {
		var entry models.HistoryEntry
		err := rows.Scan(
			&entry.ID,
			&entry.JobCardID,
			&entry.TaskID,
			&entry.Event,
			&entry.PreviousStatus,
			&entry.NewStatus,
			&entry.By,
			&entry.At,
			&entry.Notes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Apply writes a mutation in a single transaction. A version mismatch on any task
// rolls back everything and returns lifecycle.ErrConflict.
func (c *Client) Apply(ctx context.Context, m storage.Mutation) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		return applyMutation(ctx, tx, m)
	})
}

func (c *Client) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func applyMutation(ctx context.Context, tx *sql.Tx, m storage.Mutation) error {
	if m.JobCard != nil {
		query := `
			UPDATE job_cards
			SET status = $1, priority = $2, customer_name = $3, updated_at = $4
			WHERE id = $5`

		result, err := tx.ExecContext(ctx, query, m.JobCard.Status, m.JobCard.Priority, m.JobCard.CustomerName, m.JobCard.UpdatedAt, m.JobCardID)
		if err != nil {
			return fmt.Errorf("failed to update job card: %w", err)
		}
		if err := expectOneRow(result, storage.ErrJobCardNotFound); err != nil {
			return err
		}
	}

	for _, w := range m.Writes {
		var err error
		if w.ExpectedVersion == 0 {
			err = insertTask(ctx, tx, w.Task)
		} else {
			err = updateTask(ctx, tx, w)
		}
		if err != nil {
			return err
		}
	}

	for _, d := range m.Deletes {
		query := `DELETE FROM tasks WHERE id = $1 AND job_card_id = $2 AND version = $3`

		result, err := tx.ExecContext(ctx, query, d.ID, m.JobCardID, d.ExpectedVersion)
		if err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		if err := expectOneRow(result, conflictErr(d.ID)); err != nil {
			return err
		}
	}

	for _, entry := range m.History {
		query := `
			INSERT INTO task_history
			(id, job_card_id, task_id, event, previous_status, new_status, by_actor, at, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

		_, err := tx.ExecContext(ctx, query,
			entry.ID,
			m.JobCardID,
			entry.TaskID,
			entry.Event,
			entry.PreviousStatus,
			entry.NewStatus,
			entry.By,
			entry.At,
			entry.Notes,
		)
		if err != nil {
			return fmt.Errorf("failed to insert history entry: %w", err)
		}
	}

	return nil
}

func insertTask(ctx context.Context, tx *sql.Tx, task models.Task) error {
	parts, err := marshalParts(task.Parts)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks
		(id, job_card_id, title, description, category, estimated_hours, status, is_critical,
			assigned_to, completed_by, completed_at, verified_by, verified_at, notes, parts, depends_on,
			version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err = tx.ExecContext(ctx, query,
		task.ID,
		task.JobCardID,
		task.Title,
		task.Description,
		task.Category,
		task.EstimatedHours,
		task.Status,
		task.IsCritical,
		task.AssignedTo,
		task.CompletedBy,
		task.CompletedAt,
		task.VerifiedBy,
		task.VerifiedAt,
		task.Notes,
		parts,
		pq.Array(nonNil(task.DependsOn)),
		task.Version,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func updateTask(ctx context.Context, tx *sql.Tx, w storage.TaskWrite) error {
	task := w.Task
	parts, err := marshalParts(task.Parts)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET title = $1, description = $2, category = $3, estimated_hours = $4, status = $5,
			is_critical = $6, assigned_to = $7, completed_by = $8, completed_at = $9,
			verified_by = $10, verified_at = $11, notes = $12, parts = $13, depends_on = $14,
			version = $15, updated_at = $16
		WHERE id = $17 AND job_card_id = $18 AND version = $19`

	result, err := tx.ExecContext(ctx, query,
		task.Title,
		task.Description,
		task.Category,
		task.EstimatedHours,
		task.Status,
		task.IsCritical,
		task.AssignedTo,
		task.CompletedBy,
		task.CompletedAt,
		task.VerifiedBy,
		task.VerifiedAt,
		task.Notes,
		parts,
		pq.Array(nonNil(task.DependsOn)),
		task.Version,
		task.UpdatedAt,
		task.ID,
		task.JobCardID,
		w.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return expectOneRow(result, conflictErr(task.ID))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobCard(row rowScanner) (*models.JobCard, error) {
	var jc models.JobCard
	err := row.Scan(
		&jc.ID,
		&jc.WorkOrderNumber,
		&jc.VehicleID,
		&jc.CustomerName,
		&jc.Priority,
		&jc.Status,
		&jc.TemplateID,
		&jc.CreatedBy,
		&jc.CreatedAt,
		&jc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &jc, nil
}

func expectOneRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func conflictErr(taskID string) error {
	return fmt.Errorf("%w: task %s", lifecycle.ErrConflict, taskID)
}

func marshalParts(parts []models.Part) ([]byte, error) {
	if parts == nil {
		parts = []models.Part{}
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parts: %w", err)
	}
	return data, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	at := t.Time
	return &at
}
