package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowportal/pkg/models"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same queries
// serve pooled and transactional access.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   querier
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore over the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// EnsureSchema creates the portal tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS activity_instances (
			id BIGSERIAL PRIMARY KEY,
			app_name TEXT NOT NULL,
			model_name TEXT NOT NULL,
			step_key TEXT NOT NULL,
			fields JSONB NOT NULL DEFAULT '{}',
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS tasks (
			id UUID PRIMARY KEY,
			instance_id BIGINT NOT NULL REFERENCES activity_instances(id) ON DELETE CASCADE,
			assignee TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			decision TEXT NOT NULL DEFAULT '',
			previous_instance_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_instances_app_model
			ON activity_instances (app_name, model_name);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_instance
			ON tasks (instance_id);`,
	)
	return err
}

// WithinTx runs fn against a transactional view of the store. Any error from
// fn rolls back every write made inside it.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx ActivityStore) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PostgresStore{pool: s.pool, db: tx})
	})
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateInstance inserts a new activity instance and fills in its assigned ID
// and timestamps.
func (s *PostgresStore) CreateInstance(ctx context.Context, inst *models.ActivityInstance) error {
	now := time.Now().UTC()
	err := s.db.QueryRow(ctx, `
		INSERT INTO activity_instances (app_name, model_name, step_key, fields, completed, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id`,
		inst.AppName, inst.ModelName, inst.StepKey, inst.Fields, inst.Completed, inst.CreatedBy, now,
	).Scan(&inst.ID)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	inst.CreatedAt = now
	inst.UpdatedAt = now
	return nil
}

// GetInstance retrieves an instance and its current task, if any.
func (s *PostgresStore) GetInstance(ctx context.Context, id int64) (*models.ActivityInstance, error) {
	var inst models.ActivityInstance
	err := s.db.QueryRow(ctx, `
		SELECT id, app_name, model_name, step_key, fields, completed, created_by, created_at, updated_at
		FROM activity_instances WHERE id = $1`, id,
	).Scan(&inst.ID, &inst.AppName, &inst.ModelName, &inst.StepKey, &inst.Fields,
		&inst.Completed, &inst.CreatedBy, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("instance %d: %w", id, ErrNotFound)
		}
		return nil, err
	}

	task, err := s.taskForInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	inst.Task = task
	return &inst, nil
}

// UpdateInstance persists the instance's mutable columns.
func (s *PostgresStore) UpdateInstance(ctx context.Context, inst *models.ActivityInstance) error {
	inst.UpdatedAt = time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE activity_instances
		SET fields = $1, completed = $2, updated_at = $3
		WHERE id = $4`,
		inst.Fields, inst.Completed, inst.UpdatedAt, inst.ID,
	)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("instance %d: %w", inst.ID, ErrNotFound)
	}
	return nil
}

// DeleteInstance removes an instance; its task goes with it.
func (s *PostgresStore) DeleteInstance(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM activity_instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("instance %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListInstances returns all instances of the given entity type, newest first.
func (s *PostgresStore) ListInstances(ctx context.Context, appName, modelName string) ([]*models.ActivityInstance, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, app_name, model_name, step_key, fields, completed, created_by, created_at, updated_at
		FROM activity_instances
		WHERE app_name = $1 AND model_name = $2
		ORDER BY id DESC`, appName, modelName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*models.ActivityInstance
	for rows.Next() {
		var inst models.ActivityInstance
		if err := rows.Scan(&inst.ID, &inst.AppName, &inst.ModelName, &inst.StepKey, &inst.Fields,
			&inst.Completed, &inst.CreatedBy, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, err
		}
		instances = append(instances, &inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, inst := range instances {
		task, err := s.taskForInstance(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		inst.Task = task
	}
	return instances, nil
}

// CreateTask inserts a task for an instance.
func (s *PostgresStore) CreateTask(ctx context.Context, task *models.Task) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO tasks (id, instance_id, assignee, status, decision, previous_instance_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		task.ID, task.InstanceID, task.Assignee, string(task.Status), task.Decision, task.PreviousInstanceID, now,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

// UpdateTask persists the task's mutable columns.
func (s *PostgresStore) UpdateTask(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE tasks
		SET assignee = $1, status = $2, decision = $3, updated_at = $4
		WHERE id = $5`,
		task.Assignee, string(task.Status), task.Decision, task.UpdatedAt, task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", task.ID, ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *PostgresStore) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) taskForInstance(ctx context.Context, instanceID int64) (*models.Task, error) {
	var task models.Task
	var status string
	err := s.db.QueryRow(ctx, `
		SELECT id, instance_id, assignee, status, decision, previous_instance_id, created_at, updated_at
		FROM tasks WHERE instance_id = $1`, instanceID,
	).Scan(&task.ID, &task.InstanceID, &task.Assignee, &status, &task.Decision,
		&task.PreviousInstanceID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	task.Status = models.TaskStatus(status)
	return &task, nil
}
