// Package repository persists activity instances and their tasks.
package repository

import (
	"context"
	"errors"

	"flowportal/pkg/models"
)

// ErrNotFound is returned when an instance or task does not exist.
var ErrNotFound = errors.New("not found")

// ActivityStore is the persistence contract for activity instances and tasks.
// GetInstance and ListInstances load the current task alongside the instance.
type ActivityStore interface {
	CreateInstance(ctx context.Context, inst *models.ActivityInstance) error
	GetInstance(ctx context.Context, id int64) (*models.ActivityInstance, error)
	UpdateInstance(ctx context.Context, inst *models.ActivityInstance) error
	DeleteInstance(ctx context.Context, id int64) error
	ListInstances(ctx context.Context, appName, modelName string) ([]*models.ActivityInstance, error)

	CreateTask(ctx context.Context, task *models.Task) error
	UpdateTask(ctx context.Context, task *models.Task) error
	DeleteTask(ctx context.Context, id string) error
}

// Store is an ActivityStore with an atomic transaction boundary. All writes
// made through the store passed to fn either fully commit or fully roll back.
type Store interface {
	ActivityStore
	WithinTx(ctx context.Context, fn func(tx ActivityStore) error) error
	Ping(ctx context.Context) error
}
