package api

import (
	"github.com/labstack/echo/v4"

	"flowportal/pkg/models"
)

// Workflows lists the configured workflow definitions.
// (GET /)
func (s *Server) Workflows(c echo.Context) error {
	return s.respond(c, Render{
		Template: "index.html",
		Context:  echo.Map{"workflows": s.Registry.Definitions()},
	})
}

// WorkflowDetail lists the in-flight requests of one workflow: it resolves
// the initial step's entity type and enumerates all persisted instances of
// that type.
// (GET /:app_name/)
func (s *Server) WorkflowDetail(c echo.Context) error {
	ctx := c.Request().Context()

	params, err := resolveParams(c, "app_name")
	if err != nil {
		return notFound(err)
	}

	initial, err := s.Registry.InitialStep(params.AppName)
	if err != nil {
		return notFound(err)
	}

	instances, err := s.Store.ListInstances(ctx, params.AppName, initial.Step.Model)
	if err != nil {
		return err
	}

	return s.respond(c, Render{
		Template: "workflow.html",
		Context: echo.Map{
			"app_name":           params.AppName,
			"initial_model":      initial.Step.Model,
			"instances":          instances,
			"request_identifier": models.RequestIdentifier,
		},
	})
}
