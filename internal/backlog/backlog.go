// Package backlog is the project-management backlog (System A): a SQLite
// task table grouped by project, addressed by integer task ids.
package backlog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lherron/tasksync/internal/db"
	"github.com/lherron/tasksync/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed backlog.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// Filter narrows ListTasks.
type Filter struct {
	Project        string // project slug; empty lists every project
	IncludeDeleted bool
}

// Open opens (and migrates) the backlog database at path.
func Open(path string) (*Store, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	s, err := New(database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database, applying the backlog schema if needed.
func New(database *db.DB) (*Store, error) {
	if _, err := database.MigrateFS(migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("failed to migrate backlog: %w", err)
	}
	return &Store{db: database, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Healthy reports whether the backlog database answers.
func (s *Store) Healthy(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

// EnsureProject returns the id of the project with slug, creating it if needed.
func (s *Store) EnsureProject(ctx context.Context, slug string) (int64, error) {
	if err := ValidateSlug(slug); err != nil {
		return 0, err
	}
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO backlog_projects (slug) VALUES (?)", slug); err != nil {
		return 0, fmt.Errorf("failed to create project %s: %w", slug, err)
	}
	var projectID int64
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM backlog_projects WHERE slug = ?", slug).Scan(&projectID); err != nil {
		return 0, fmt.Errorf("failed to resolve project %s: %w", slug, err)
	}
	return projectID, nil
}

// Projects returns every project slug.
func (s *Store) Projects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT slug FROM backlog_projects ORDER BY slug")
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		out = append(out, slug)
	}
	return out, rows.Err()
}

const taskSelect = `
	SELECT t.id, p.slug, t.title, t.description, t.state, t.priority, t.labels, t.updated_at
	FROM backlog_tasks t
	JOIN backlog_projects p ON p.id = t.project_id
`

// ListTasks returns tasks ordered by id.
func (s *Store) ListTasks(ctx context.Context, f Filter) ([]domain.BacklogTask, error) {
	query := taskSelect + " WHERE 1=1"
	var args []interface{}
	if !f.IncludeDeleted {
		query += " AND t.deleted_at IS NULL"
	}
	if f.Project != "" {
		query += " AND p.slug = ?"
		args = append(args, f.Project)
	}
	query += " ORDER BY t.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list backlog tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.BacklogTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backlog tasks: %w", err)
	}
	return out, nil
}

// GetTask returns a live task by id.
func (s *Store) GetTask(ctx context.Context, taskID int64) (*domain.BacklogTask, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+" WHERE t.id = ? AND t.deleted_at IS NULL", taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("backlog task %d: %w", taskID, domain.ErrTaskNotFound)
	}
	return t, err
}

// CreateTask inserts a task and returns it with its id populated.
// A non-zero t.ID is honoured when that id is free or names a deleted task,
// which is then restored; otherwise a new id is assigned.
func (s *Store) CreateTask(ctx context.Context, t domain.BacklogTask) (domain.BacklogTask, error) {
	if err := domain.ValidateBacklogTask(&t); err != nil {
		return domain.BacklogTask{}, err
	}
	projectID, err := s.EnsureProject(ctx, t.Project)
	if err != nil {
		return domain.BacklogTask{}, err
	}
	if t.UpdatedAt == nil {
		now := s.now().UTC()
		t.UpdatedAt = &now
	}
	labels, err := encodeLabels(t.Labels)
	if err != nil {
		return domain.BacklogTask{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.BacklogTask{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	requested := t.ID
	t.ID = 0
	if requested > 0 {
		var deletedAt sql.NullString
		err := tx.QueryRowContext(ctx, "SELECT deleted_at FROM backlog_tasks WHERE id = ?", requested).Scan(&deletedAt)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `
				INSERT INTO backlog_tasks (id, project_id, title, description, state, priority, labels, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, requested, projectID, t.Title, t.Description, string(t.Status), t.Priority, labels, formatTime(*t.UpdatedAt))
			if err != nil {
				return domain.BacklogTask{}, fmt.Errorf("failed to create backlog task: %w", err)
			}
			t.ID = requested
		case err != nil:
			return domain.BacklogTask{}, fmt.Errorf("failed to check backlog task %d: %w", requested, err)
		case deletedAt.Valid:
			_, err = tx.ExecContext(ctx, `
				UPDATE backlog_tasks
				SET project_id = ?, title = ?, description = ?, state = ?, priority = ?, labels = ?,
				    updated_at = ?, deleted_at = NULL, etag = etag + 1
				WHERE id = ?
			`, projectID, t.Title, t.Description, string(t.Status), t.Priority, labels, formatTime(*t.UpdatedAt), requested)
			if err != nil {
				return domain.BacklogTask{}, fmt.Errorf("failed to restore backlog task %d: %w", requested, err)
			}
			t.ID = requested
		}
	}

	if t.ID == 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO backlog_tasks (project_id, title, description, state, priority, labels, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, projectID, t.Title, t.Description, string(t.Status), t.Priority, labels, formatTime(*t.UpdatedAt))
		if err != nil {
			return domain.BacklogTask{}, fmt.Errorf("failed to create backlog task: %w", err)
		}
		if t.ID, err = res.LastInsertId(); err != nil {
			return domain.BacklogTask{}, fmt.Errorf("failed to get last insert ID: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.BacklogTask{}, fmt.Errorf("failed to commit backlog task: %w", err)
	}
	return t, nil
}

// UpdateTask replaces every field of a live task.
func (s *Store) UpdateTask(ctx context.Context, t domain.BacklogTask) error {
	if err := domain.ValidateBacklogTask(&t); err != nil {
		return err
	}
	projectID, err := s.EnsureProject(ctx, t.Project)
	if err != nil {
		return err
	}
	labels, err := encodeLabels(t.Labels)
	if err != nil {
		return err
	}
	updatedAt := s.now().UTC()
	if t.UpdatedAt != nil {
		updatedAt = *t.UpdatedAt
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE backlog_tasks
		SET project_id = ?, title = ?, description = ?, state = ?, priority = ?, labels = ?,
		    updated_at = ?, etag = etag + 1
		WHERE id = ? AND deleted_at IS NULL
	`, projectID, t.Title, t.Description, string(t.Status), t.Priority, labels, formatTime(updatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update backlog task %d: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update backlog task %d: %w", t.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("backlog task %d: %w", t.ID, domain.ErrTaskNotFound)
	}
	return nil
}

// DeleteTask soft-deletes a task; it disappears from ListTasks.
func (s *Store) DeleteTask(ctx context.Context, taskID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE backlog_tasks SET deleted_at = ?, etag = etag + 1
		WHERE id = ? AND deleted_at IS NULL
	`, formatTime(s.now()), taskID)
	if err != nil {
		return fmt.Errorf("failed to delete backlog task %d: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete backlog task %d: %w", taskID, err)
	}
	if n == 0 {
		return fmt.Errorf("backlog task %d: %w", taskID, domain.ErrTaskNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*domain.BacklogTask, error) {
	var t domain.BacklogTask
	var state, labels string
	var updatedAt sql.NullString
	if err := row.Scan(&t.ID, &t.Project, &t.Title, &t.Description, &state, &t.Priority, &labels, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan backlog task: %w", err)
	}
	t.Status = domain.BacklogStatus(state)
	if labels != "" && labels != "[]" {
		if err := json.Unmarshal([]byte(labels), &t.Labels); err != nil {
			return nil, fmt.Errorf("backlog task %d has invalid labels: %w", t.ID, err)
		}
	}
	if updatedAt.Valid && updatedAt.String != "" {
		ts, err := time.Parse(time.RFC3339Nano, updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("backlog task %d has invalid updated_at: %w", t.ID, err)
		}
		t.UpdatedAt = &ts
	}
	return &t, nil
}

func encodeLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("failed to encode labels: %w", err)
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
