// Package models defines the domain models for the workflow portal.
package models

import (
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusNotStarted TaskStatus = "not_started"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusRolledBack TaskStatus = "rolled_back"
)

// RequestIdentifier is the form field that carries the business key shown on
// the workflow detail listing.
const RequestIdentifier = "subject"

// StepDefinition describes one step of a workflow: the entity type backing it
// and whether it is the step that opens a new request.
type StepDefinition struct {
	Key     string `json:"key"`
	Model   string `json:"model"`
	Initial bool   `json:"initial"`
}

// WorkflowDefinition is the static configuration of one registered workflow
// application. It is loaded at process start and never mutated.
type WorkflowDefinition struct {
	AppName     string           `json:"app_name"`
	Description string           `json:"description"`
	Initial     string           `json:"initial"`
	Flow        []StepDefinition `json:"flow"`
}

// InitialStep returns the step definition flagged as the workflow entry point.
func (w WorkflowDefinition) InitialStep() (StepDefinition, bool) {
	for _, s := range w.Flow {
		if s.Key == w.Initial {
			return s, true
		}
	}
	return StepDefinition{}, false
}

// Task is the pending unit of work attached to an in-progress activity
// instance. It is owned exclusively by its instance and closed on finish.
type Task struct {
	ID                 string     `json:"id" db:"id"`
	InstanceID         int64      `json:"instance_id" db:"instance_id"`
	Assignee           string     `json:"assignee" db:"assignee"`
	Status             TaskStatus `json:"status" db:"status"`
	Decision           string     `json:"decision,omitempty" db:"decision"`
	PreviousInstanceID *int64     `json:"previous_instance_id,omitempty" db:"previous_instance_id"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// ActivityInstance is one concrete execution of a workflow step. Field values
// are schema-driven and stored as a document alongside the fixed columns.
type ActivityInstance struct {
	ID        int64          `json:"id" db:"id"`
	AppName   string         `json:"app_name" db:"app_name"`
	ModelName string         `json:"model_name" db:"model_name"`
	StepKey   string         `json:"step_key" db:"step_key"`
	Fields    map[string]any `json:"fields" db:"fields"`
	Completed bool           `json:"completed" db:"completed"`
	CreatedBy string         `json:"created_by" db:"created_by"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`

	// Task is the current task, nil once the instance is finished.
	Task *Task `json:"task,omitempty"`
}

// IsInitial reports whether the instance backs the workflow's opening step.
func (a *ActivityInstance) IsInitial(def WorkflowDefinition) bool {
	return a.StepKey == def.Initial
}

// RequestParams is the ephemeral per-request address of a workflow step:
// which application, which step entity type, and which record.
type RequestParams struct {
	AppName    string
	ModelTitle string
	PK         int64
}

// Actor is the authenticated principal performing a request.
type Actor struct {
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the actor carries the given role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
