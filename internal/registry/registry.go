// Package registry resolves workflow applications and step entity types by
// name. The registry is an explicit map of string keys to step descriptors and
// factory functions, populated once at startup from configuration.
package registry

import (
	"errors"
	"fmt"

	"flowportal/internal/config"
	"flowportal/internal/forms"
	"flowportal/pkg/models"
)

var (
	// ErrUnknownWorkflow is returned when an app name is not registered.
	ErrUnknownWorkflow = errors.New("unknown workflow")
	// ErrUnknownModel is returned when a model title is not registered for
	// an otherwise known workflow.
	ErrUnknownModel = errors.New("unknown workflow model")
)

// StepDescriptor binds one workflow step to its entity type, input schema,
// and the roles permitted to act on it.
type StepDescriptor struct {
	AppName string
	Step    models.StepDefinition
	Roles   []string
	Schema  *forms.Schema
}

// NewInstance is the factory for an empty activity instance of this step's
// entity type.
func (d *StepDescriptor) NewInstance() *models.ActivityInstance {
	return &models.ActivityInstance{
		AppName:   d.AppName,
		ModelName: d.Step.Model,
		StepKey:   d.Step.Key,
		Fields:    make(map[string]any),
	}
}

// Registry is the read-only lookup table over the configured workflows.
type Registry struct {
	defs    []models.WorkflowDefinition
	byApp   map[string]models.WorkflowDefinition
	byModel map[string]map[string]*StepDescriptor
	order   map[string][]*StepDescriptor
}

// New builds a Registry from validated configuration.
func New(cfg *config.Config) *Registry {
	r := &Registry{
		defs:    cfg.Definitions(),
		byApp:   make(map[string]models.WorkflowDefinition),
		byModel: make(map[string]map[string]*StepDescriptor),
		order:   make(map[string][]*StepDescriptor),
	}
	for _, def := range r.defs {
		r.byApp[def.AppName] = def
		r.byModel[def.AppName] = make(map[string]*StepDescriptor)

		wf := cfg.Workflows[def.AppName]
		for i, step := range def.Flow {
			sc := wf.Flow[i]
			desc := &StepDescriptor{
				AppName: def.AppName,
				Step:    step,
				Roles:   sc.Roles,
				Schema:  &forms.Schema{Model: step.Model, Fields: sc.Fields},
			}
			r.byModel[def.AppName][step.Model] = desc
			r.order[def.AppName] = append(r.order[def.AppName], desc)
		}
	}
	return r
}

// Definitions lists all registered workflow definitions in stable order.
func (r *Registry) Definitions() []models.WorkflowDefinition {
	return r.defs
}

// Workflow returns the definition registered under the given app name.
func (r *Registry) Workflow(appName string) (models.WorkflowDefinition, error) {
	def, ok := r.byApp[appName]
	if !ok {
		return models.WorkflowDefinition{}, fmt.Errorf("%w: %q", ErrUnknownWorkflow, appName)
	}
	return def, nil
}

// LocateModel resolves the step descriptor addressed by the request params.
// It is a side-effect-free registry lookup.
func (r *Registry) LocateModel(params models.RequestParams) (*StepDescriptor, error) {
	steps, ok := r.byModel[params.AppName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, params.AppName)
	}
	desc, ok := steps[params.ModelTitle]
	if !ok {
		return nil, fmt.Errorf("%w: %q in workflow %q", ErrUnknownModel, params.ModelTitle, params.AppName)
	}
	return desc, nil
}

// LocateForm resolves the input schema for the step addressed by the params.
func (r *Registry) LocateForm(params models.RequestParams) (*forms.Schema, error) {
	desc, err := r.LocateModel(params)
	if err != nil {
		return nil, err
	}
	return desc.Schema, nil
}

// InitialStep returns the descriptor of the workflow's opening step.
func (r *Registry) InitialStep(appName string) (*StepDescriptor, error) {
	def, err := r.Workflow(appName)
	if err != nil {
		return nil, err
	}
	for _, desc := range r.order[appName] {
		if desc.Step.Key == def.Initial {
			return desc, nil
		}
	}
	return nil, fmt.Errorf("%w: %q has no initial step", ErrUnknownWorkflow, appName)
}

// NextStep returns the step following stepKey in flow order, or false when
// stepKey is the last step or unknown.
func (r *Registry) NextStep(appName, stepKey string) (*StepDescriptor, bool) {
	steps := r.order[appName]
	for i, desc := range steps {
		if desc.Step.Key == stepKey && i+1 < len(steps) {
			return steps[i+1], true
		}
	}
	return nil, false
}
