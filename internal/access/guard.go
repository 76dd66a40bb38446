// Package access implements the capability check run before workflow
// operations. The controller holds a Guard and calls it explicitly.
package access

import (
	"context"
	"fmt"

	"flowportal/internal/registry"
	"flowportal/pkg/models"
)

// Denial is the outcome of a failed access check. It is a normal, recoverable
// result, not an error.
type Denial struct {
	Reason string
}

// Guard evaluates whether an actor may view or mutate the workflow step
// addressed by the request params. A nil result allows continuation.
type Guard interface {
	Check(ctx context.Context, actor models.Actor, params models.RequestParams) (*Denial, error)
}

// InstanceReader is the subset of the store the guard needs to inspect the
// current instance state.
type InstanceReader interface {
	GetInstance(ctx context.Context, id int64) (*models.ActivityInstance, error)
}

// RoleGuard allows an operation when the actor carries one of the roles
// configured for the target step, and, for addressed instances with a pending
// task, when the actor is the assignee or the task is unclaimed.
type RoleGuard struct {
	registry *registry.Registry
	store    InstanceReader
}

// NewRoleGuard creates a RoleGuard over the given registry and store.
func NewRoleGuard(reg *registry.Registry, store InstanceReader) *RoleGuard {
	return &RoleGuard{registry: reg, store: store}
}

// Check implements Guard.
func (g *RoleGuard) Check(ctx context.Context, actor models.Actor, params models.RequestParams) (*Denial, error) {
	desc, err := g.registry.LocateModel(params)
	if err != nil {
		return nil, err
	}

	if len(desc.Roles) > 0 && !hasAnyRole(actor, desc.Roles) {
		return &Denial{
			Reason: fmt.Sprintf("%s is not permitted to act on %s", actor.Email, desc.Step.Model),
		}, nil
	}

	if params.PK == 0 {
		return nil, nil
	}

	inst, err := g.store.GetInstance(ctx, params.PK)
	if err != nil {
		// Unknown instances are handled downstream as not-found, not as
		// an access decision.
		return nil, nil
	}
	if inst.Task != nil && inst.Task.Assignee != "" && inst.Task.Assignee != actor.Email {
		return &Denial{
			Reason: fmt.Sprintf("task for %s #%d is assigned to %s", inst.ModelName, inst.ID, inst.Task.Assignee),
		}, nil
	}
	return nil, nil
}

func hasAnyRole(actor models.Actor, roles []string) bool {
	for _, r := range roles {
		if actor.HasRole(r) {
			return true
		}
	}
	return false
}
