// Package services implements the workflow state machine driving activity
// instances and their tasks.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"flowportal/internal/logging"
	"flowportal/internal/registry"
	"flowportal/internal/repository"
	"flowportal/pkg/models"
)

// ErrNoTask is returned when an operation requires a pending task and the
// instance has none.
var ErrNoTask = errors.New("activity has no pending task")

// Engine is the transition contract consumed by the HTTP controller. Every
// mutating method operates through the store it is handed, so callers decide
// the transaction boundary.
type Engine interface {
	InitiateRequest(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance, actor models.Actor) error
	AssignTask(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance, targetPK int64) error
	InitiateTask(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance) error
	SubmitTask(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance, appName string, actor models.Actor, decision string) error
	RollbackTask(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance) error
	UpdateInstance(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance) error
	FinishInstance(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance) error
	Next(inst *models.ActivityInstance) (*registry.StepDescriptor, bool)
}

// FlowService implements Engine against the step registry.
type FlowService struct {
	registry *registry.Registry
	logger   *logging.Logger
}

var _ Engine = (*FlowService)(nil)

// NewFlowService creates a new FlowService.
func NewFlowService(reg *registry.Registry, logger *logging.Logger) *FlowService {
	return &FlowService{registry: reg, logger: logger}
}

// InitiateRequest opens a new workflow request: the instance backs the initial
// step, and its first task is owned by the requesting actor.
func (s *FlowService) InitiateRequest(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance, actor models.Actor) error {
	task := &models.Task{
		ID:         uuid.New().String(),
		InstanceID: inst.ID,
		Assignee:   actor.Email,
		Status:     models.TaskStatusInProgress,
	}
	if err := store.CreateTask(ctx, task); err != nil {
		return err
	}
	inst.Task = task
	s.logger.Info("request initiated", "app", inst.AppName, "instance", inst.ID, "actor", actor.Email)
	return nil
}

// AssignTask attaches a task to a non-initial activity, linking it back to
// the prior step's instance so a rollback can find its way home.
func (s *FlowService) AssignTask(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance, targetPK int64) error {
	if _, err := store.GetInstance(ctx, targetPK); err != nil {
		return fmt.Errorf("assign task: %w", err)
	}
	task := &models.Task{
		ID:                 uuid.New().String(),
		InstanceID:         inst.ID,
		Status:             models.TaskStatusNotStarted,
		PreviousInstanceID: &targetPK,
	}
	if err := store.CreateTask(ctx, task); err != nil {
		return err
	}
	inst.Task = task
	s.logger.Info("task assigned", "app", inst.AppName, "instance", inst.ID, "previous", targetPK)
	return nil
}

// InitiateTask moves the instance's pending task into progress.
func (s *FlowService) InitiateTask(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance) error {
	if inst.Task == nil {
		return ErrNoTask
	}
	inst.Task.Status = models.TaskStatusInProgress
	return store.UpdateTask(ctx, inst.Task)
}

// SubmitTask records the actor's decision and completes the task. The next
// step of the flow picks the request up from here.
func (s *FlowService) SubmitTask(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance, appName string, actor models.Actor, decision string) error {
	if inst.Task == nil {
		return ErrNoTask
	}
	inst.Task.Status = models.TaskStatusCompleted
	inst.Task.Decision = decision
	inst.Task.Assignee = actor.Email
	if err := store.UpdateTask(ctx, inst.Task); err != nil {
		return err
	}
	s.logger.Info("task submitted",
		"app", appName, "instance", inst.ID, "actor", actor.Email, "decision", decision)
	return nil
}

// RollbackTask reverts the instance's task and reopens the prior step's task
// when one is linked.
func (s *FlowService) RollbackTask(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance) error {
	if inst.Task == nil {
		return ErrNoTask
	}
	inst.Task.Status = models.TaskStatusRolledBack
	inst.Task.Decision = ""
	if err := store.UpdateTask(ctx, inst.Task); err != nil {
		return err
	}

	if inst.Task.PreviousInstanceID != nil {
		prev, err := store.GetInstance(ctx, *inst.Task.PreviousInstanceID)
		if err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		if prev.Task != nil {
			prev.Task.Status = models.TaskStatusInProgress
			prev.Task.Decision = ""
			if err := store.UpdateTask(ctx, prev.Task); err != nil {
				return err
			}
		}
	}
	s.logger.Info("task rolled back", "app", inst.AppName, "instance", inst.ID)
	return nil
}

// UpdateInstance persists field changes on a stay-on-page save.
func (s *FlowService) UpdateInstance(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance) error {
	return store.UpdateInstance(ctx, inst)
}

// FinishInstance completes the instance and closes its task. A finished
// instance carries no task.
func (s *FlowService) FinishInstance(ctx context.Context, store repository.ActivityStore, inst *models.ActivityInstance) error {
	inst.Completed = true
	if err := store.UpdateInstance(ctx, inst); err != nil {
		return err
	}
	if inst.Task != nil {
		if err := store.DeleteTask(ctx, inst.Task.ID); err != nil {
			return err
		}
		inst.Task = nil
	}
	s.logger.Info("activity finished", "app", inst.AppName, "instance", inst.ID)
	return nil
}

// Next returns the step that follows the instance's step in flow order.
func (s *FlowService) Next(inst *models.ActivityInstance) (*registry.StepDescriptor, bool) {
	return s.registry.NextStep(inst.AppName, inst.StepKey)
}
