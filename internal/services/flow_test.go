package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowportal/internal/config"
	"flowportal/internal/forms"
	"flowportal/internal/logging"
	"flowportal/internal/registry"
	"flowportal/internal/repository"
	"flowportal/pkg/models"
)

func testService() *FlowService {
	reg := registry.New(&config.Config{
		Workflows: map[string]config.WorkflowConfig{
			"leave-request": {
				Initial: "request",
				Flow: []config.StepConfig{
					{
						Key:    "request",
						Model:  "LeaveRequest",
						Roles:  []string{"employee"},
						Fields: []forms.FieldSpec{{Name: "subject", Kind: forms.KindText}},
					},
					{
						Key:   "approve",
						Model: "LeaveApproval",
						Roles: []string{"manager"},
					},
				},
			},
		},
	})
	return NewFlowService(reg, logging.NewLogger())
}

func createInstance(t *testing.T, store repository.ActivityStore, model, step string) *models.ActivityInstance {
	t.Helper()
	inst := &models.ActivityInstance{
		AppName:   "leave-request",
		ModelName: model,
		StepKey:   step,
		Fields:    map[string]any{},
	}
	require.NoError(t, store.CreateInstance(context.Background(), inst))
	return inst
}

func TestInitiateRequest(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := testService()

	inst := createInstance(t, store, "LeaveRequest", "request")
	actor := models.Actor{Email: "alice@acme.com"}

	require.NoError(t, svc.InitiateRequest(ctx, store, inst, actor))

	got, err := store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Task)
	assert.Equal(t, "alice@acme.com", got.Task.Assignee)
	assert.Equal(t, models.TaskStatusInProgress, got.Task.Status)
	assert.Nil(t, got.Task.PreviousInstanceID)
}

func TestAssignTask(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := testService()

	request := createInstance(t, store, "LeaveRequest", "request")
	approval := createInstance(t, store, "LeaveApproval", "approve")

	require.NoError(t, svc.AssignTask(ctx, store, approval, request.ID))

	got, err := store.GetInstance(ctx, approval.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Task)
	assert.Equal(t, models.TaskStatusNotStarted, got.Task.Status)
	require.NotNil(t, got.Task.PreviousInstanceID)
	assert.Equal(t, request.ID, *got.Task.PreviousInstanceID)
}

func TestAssignTask_MissingTarget(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := testService()

	approval := createInstance(t, store, "LeaveApproval", "approve")

	err := svc.AssignTask(ctx, store, approval, 999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, approval.Task)
}

func TestInitiateTask(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := testService()

	request := createInstance(t, store, "LeaveRequest", "request")
	approval := createInstance(t, store, "LeaveApproval", "approve")
	require.NoError(t, svc.AssignTask(ctx, store, approval, request.ID))

	require.NoError(t, svc.InitiateTask(ctx, store, approval))

	got, err := store.GetInstance(ctx, approval.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, got.Task.Status)
}

func TestInitiateTask_NoTask(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := testService()

	inst := createInstance(t, store, "LeaveRequest", "request")
	assert.ErrorIs(t, svc.InitiateTask(context.Background(), store, inst), ErrNoTask)
}

func TestSubmitTask(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := testService()

	inst := createInstance(t, store, "LeaveRequest", "request")
	require.NoError(t, svc.InitiateRequest(ctx, store, inst, models.Actor{Email: "alice@acme.com"}))

	manager := models.Actor{Email: "bob@acme.com"}
	require.NoError(t, svc.SubmitTask(ctx, store, inst, "leave-request", manager, "approved"))

	got, err := store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, got.Task.Status)
	assert.Equal(t, "approved", got.Task.Decision)
	assert.Equal(t, "bob@acme.com", got.Task.Assignee)
}

func TestSubmitTask_NoTask(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := testService()

	inst := createInstance(t, store, "LeaveRequest", "request")
	err := svc.SubmitTask(context.Background(), store, inst, "leave-request", models.Actor{}, "approved")
	assert.ErrorIs(t, err, ErrNoTask)
}

func TestRollbackTask_ReopensPreviousTask(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := testService()

	request := createInstance(t, store, "LeaveRequest", "request")
	require.NoError(t, svc.InitiateRequest(ctx, store, request, models.Actor{Email: "alice@acme.com"}))
	require.NoError(t, svc.SubmitTask(ctx, store, request, "leave-request", models.Actor{Email: "alice@acme.com"}, "submitted"))

	approval := createInstance(t, store, "LeaveApproval", "approve")
	require.NoError(t, svc.AssignTask(ctx, store, approval, request.ID))
	require.NoError(t, svc.InitiateTask(ctx, store, approval))

	require.NoError(t, svc.RollbackTask(ctx, store, approval))

	rolled, err := store.GetInstance(ctx, approval.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRolledBack, rolled.Task.Status)
	assert.Empty(t, rolled.Task.Decision)

	prev, err := store.GetInstance(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, prev.Task.Status)
	assert.Empty(t, prev.Task.Decision)
}

func TestRollbackTask_NoTask(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := testService()

	inst := createInstance(t, store, "LeaveApproval", "approve")
	assert.ErrorIs(t, svc.RollbackTask(context.Background(), store, inst), ErrNoTask)
}

func TestFinishInstance_RemovesTask(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := testService()

	inst := createInstance(t, store, "LeaveRequest", "request")
	require.NoError(t, svc.InitiateRequest(ctx, store, inst, models.Actor{Email: "alice@acme.com"}))

	require.NoError(t, svc.FinishInstance(ctx, store, inst))

	// A finished instance never carries a task.
	got, err := store.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.Nil(t, got.Task)
}

func TestNext(t *testing.T) {
	svc := testService()

	next, ok := svc.Next(&models.ActivityInstance{AppName: "leave-request", StepKey: "request"})
	require.True(t, ok)
	assert.Equal(t, "approve", next.Step.Key)

	_, ok = svc.Next(&models.ActivityInstance{AppName: "leave-request", StepKey: "approve"})
	assert.False(t, ok)
}
