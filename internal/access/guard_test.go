package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowportal/internal/config"
	"flowportal/internal/forms"
	"flowportal/internal/registry"
	"flowportal/internal/repository"
	"flowportal/pkg/models"
)

func testRegistry() *registry.Registry {
	return registry.New(&config.Config{
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
}

func TestRoleGuard_AllowsMatchingRole(t *testing.T) {
	guard := NewRoleGuard(testRegistry(), repository.NewMemoryStore())

	denial, err := guard.Check(context.Background(),
		models.Actor{Email: "alice@acme.com", Roles: []string{"employee"}},
		models.RequestParams{AppName: "leave-request", ModelTitle: "LeaveRequest"})

	require.NoError(t, err)
	assert.Nil(t, denial)
}

func TestRoleGuard_DeniesMissingRole(t *testing.T) {
	guard := NewRoleGuard(testRegistry(), repository.NewMemoryStore())

	denial, err := guard.Check(context.Background(),
		models.Actor{Email: "alice@acme.com", Roles: []string{"employee"}},
		models.RequestParams{AppName: "leave-request", ModelTitle: "LeaveApproval"})

	require.NoError(t, err)
	require.NotNil(t, denial)
	assert.Contains(t, denial.Reason, "alice@acme.com")
}

func TestRoleGuard_DeniesForeignAssignee(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	inst := &models.ActivityInstance{AppName: "leave-request", ModelName: "LeaveRequest", StepKey: "request"}
	require.NoError(t, store.CreateInstance(ctx, inst))
	require.NoError(t, store.CreateTask(ctx, &models.Task{
		ID:         "task-1",
		InstanceID: inst.ID,
		Assignee:   "bob@acme.com",
		Status:     models.TaskStatusInProgress,
	}))

	guard := NewRoleGuard(testRegistry(), store)

	denial, err := guard.Check(ctx,
		models.Actor{Email: "alice@acme.com", Roles: []string{"employee"}},
		models.RequestParams{AppName: "leave-request", ModelTitle: "LeaveRequest", PK: inst.ID})

	require.NoError(t, err)
	require.NotNil(t, denial)
	assert.Contains(t, denial.Reason, "bob@acme.com")
}

func TestRoleGuard_AllowsAssignee(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	inst := &models.ActivityInstance{AppName: "leave-request", ModelName: "LeaveRequest", StepKey: "request"}
	require.NoError(t, store.CreateInstance(ctx, inst))
	require.NoError(t, store.CreateTask(ctx, &models.Task{
		ID:         "task-1",
		InstanceID: inst.ID,
		Assignee:   "alice@acme.com",
		Status:     models.TaskStatusInProgress,
	}))

	guard := NewRoleGuard(testRegistry(), store)

	denial, err := guard.Check(ctx,
		models.Actor{Email: "alice@acme.com", Roles: []string{"employee"}},
		models.RequestParams{AppName: "leave-request", ModelTitle: "LeaveRequest", PK: inst.ID})

	require.NoError(t, err)
	assert.Nil(t, denial)
}

func TestRoleGuard_UnknownWorkflowIsAnError(t *testing.T) {
	guard := NewRoleGuard(testRegistry(), repository.NewMemoryStore())

	_, err := guard.Check(context.Background(),
		models.Actor{Email: "alice@acme.com"},
		models.RequestParams{AppName: "unknown", ModelTitle: "LeaveRequest"})

	assert.ErrorIs(t, err, registry.ErrUnknownWorkflow)
}
