package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"flowportal/internal/repository"
	"flowportal/pkg/models"
)

func urlWorkflowDetail(appName string) string {
	return fmt.Sprintf("/%s/", appName)
}

func urlUpdate(appName, model string, pk int64) string {
	return fmt.Sprintf("/%s/%s/%d/update/", appName, model, pk)
}

// ViewActivity displays activity details.
// (GET /:app_name/:model/:pk/)
func (s *Server) ViewActivity(c echo.Context) error {
	ctx := c.Request().Context()

	params, err := resolveParams(c, "app_name", "model", "pk")
	if err != nil {
		return notFound(err)
	}
	if _, err := s.Registry.LocateModel(params); err != nil {
		return notFound(err)
	}

	denial, err := s.Guard.Check(ctx, actorFrom(c), params)
	if err != nil {
		return mapErr(err)
	}
	if denial != nil {
		return s.respond(c, Denied{Reason: denial.Reason})
	}

	inst, err := s.Store.GetInstance(ctx, params.PK)
	if err != nil {
		if isLookupError(err) {
			return notFound(err)
		}
		return err
	}

	return s.respond(c, Render{
		Template: "detail.html",
		Context:  echo.Map{"object": inst},
	})
}

// CreateActivityForm renders an empty create form.
// (GET /:app_name/:model/create/)
func (s *Server) CreateActivityForm(c echo.Context) error {
	params, err := resolveParams(c, "app_name", "model")
	if err != nil {
		return notFound(err)
	}
	schema, err := s.Registry.LocateForm(params)
	if err != nil {
		return notFound(err)
	}

	denial, err := s.Guard.Check(c.Request().Context(), actorFrom(c), params)
	if err != nil {
		return mapErr(err)
	}
	if denial != nil {
		return s.respond(c, Denied{Reason: denial.Reason})
	}

	return s.respond(c, Render{
		Template: "create.html",
		Context:  echo.Map{"form": schema.Prefill(nil)},
	})
}

// CreateActivity creates an activity instance. Input is validated first, the
// guard runs next, and only then does the transaction open: a denial never
// touches the store, and invalid input re-renders the form with its errors.
// (POST /:app_name/:model/create/)
func (s *Server) CreateActivity(c echo.Context) error {
	ctx := c.Request().Context()
	actor := actorFrom(c)

	params, err := resolveParams(c, "app_name", "model")
	if err != nil {
		return notFound(err)
	}
	desc, err := s.Registry.LocateModel(params)
	if err != nil {
		return notFound(err)
	}

	values, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed form body")
	}

	bound := desc.Schema.Bind(values)

	// Non-initial steps are created against the prior step's instance,
	// carried as the pk form value.
	var targetPK int64
	if !desc.Step.Initial {
		targetPK, err = strconv.ParseInt(values.Get("pk"), 10, 64)
		if err != nil || targetPK <= 0 {
			bound.Errors["pk"] = append(bound.Errors["pk"], "a valid originating request is required")
		}
	}

	if !bound.Valid() {
		return s.respond(c, Render{
			Template: "create.html",
			Context: echo.Map{
				"form":          bound,
				"error_message": bound.Errors.Join(),
			},
		})
	}

	denial, err := s.Guard.Check(ctx, actor, params)
	if err != nil {
		return mapErr(err)
	}
	if denial != nil {
		return s.respond(c, Denied{Reason: denial.Reason})
	}

	inst := desc.NewInstance()
	inst.Fields = bound.Values
	inst.CreatedBy = actor.Email

	err = s.Store.WithinTx(ctx, func(tx repository.ActivityStore) error {
		if err := tx.CreateInstance(ctx, inst); err != nil {
			return err
		}
		if desc.Step.Initial {
			return s.Flow.InitiateRequest(ctx, tx, inst, actor)
		}
		if err := s.Flow.AssignTask(ctx, tx, inst, targetPK); err != nil {
			return err
		}
		return s.Flow.InitiateTask(ctx, tx, inst)
	})
	if err != nil {
		if isLookupError(err) {
			return notFound(err)
		}
		return err
	}

	s.metrics.record(ctx, "create", params.AppName)
	return s.respond(c, Redirect{URL: urlUpdate(params.AppName, params.ModelTitle, inst.ID)})
}

// UpdateActivityForm renders the pre-populated edit form with the next
// transition hint.
// (GET /:app_name/:model/:pk/update/)
func (s *Server) UpdateActivityForm(c echo.Context) error {
	ctx := c.Request().Context()

	params, err := resolveParams(c, "app_name", "model", "pk")
	if err != nil {
		return notFound(err)
	}
	schema, err := s.Registry.LocateForm(params)
	if err != nil {
		return notFound(err)
	}

	inst, err := s.Store.GetInstance(ctx, params.PK)
	if err != nil {
		if isLookupError(err) {
			return notFound(err)
		}
		return err
	}

	denial, err := s.Guard.Check(ctx, actorFrom(c), params)
	if err != nil {
		return mapErr(err)
	}
	if denial != nil {
		return s.respond(c, Denied{Reason: denial.Reason})
	}

	return s.respond(c, Render{
		Template: "update.html",
		Context: echo.Map{
			"form":   schema.Prefill(inst.Fields),
			"object": inst,
			"next":   s.nextHint(inst),
		},
	})
}

// UpdateActivity persists field changes and branches on the submit control:
// save keeps the actor on the page, finish closes the activity, and any other
// control submits the task with that decision.
// (POST /:app_name/:model/:pk/update/)
func (s *Server) UpdateActivity(c echo.Context) error {
	ctx := c.Request().Context()
	actor := actorFrom(c)

	params, err := resolveParams(c, "app_name", "model", "pk")
	if err != nil {
		return notFound(err)
	}
	schema, err := s.Registry.LocateForm(params)
	if err != nil {
		return notFound(err)
	}

	inst, err := s.Store.GetInstance(ctx, params.PK)
	if err != nil {
		if isLookupError(err) {
			return notFound(err)
		}
		return err
	}

	values, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed form body")
	}

	bound := schema.Bind(values)
	if !bound.Valid() {
		return s.respond(c, Render{
			Template: "update.html",
			Context: echo.Map{
				"form":          bound,
				"object":        inst,
				"next":          s.nextHint(inst),
				"error_message": bound.Errors.Join(),
			},
		})
	}

	denial, err := s.Guard.Check(ctx, actor, params)
	if err != nil {
		return mapErr(err)
	}
	if denial != nil {
		return s.respond(c, Denied{Reason: denial.Reason})
	}

	for k, v := range bound.Values {
		inst.Fields[k] = v
	}

	var op string
	err = s.Store.WithinTx(ctx, func(tx repository.ActivityStore) error {
		switch {
		case values.Has("save"):
			op = "save"
			return s.Flow.UpdateInstance(ctx, tx, inst)
		case values.Has("finish"):
			op = "finish"
			return s.Flow.FinishInstance(ctx, tx, inst)
		default:
			op = "submit"
			if err := s.Flow.UpdateInstance(ctx, tx, inst); err != nil {
				return err
			}
			return s.Flow.SubmitTask(ctx, tx, inst, params.AppName, actor, values.Get("submit"))
		}
	})
	if err != nil {
		if isLookupError(err) {
			return notFound(err)
		}
		return err
	}

	s.metrics.record(ctx, op, params.AppName)
	if op == "save" {
		return s.respond(c, Redirect{URL: urlUpdate(params.AppName, params.ModelTitle, inst.ID)})
	}
	return s.respond(c, Redirect{URL: urlWorkflowDetail(params.AppName)})
}

// RollbackActivity rolls the activity's task back. The guard runs before the
// mutation, unlike the historic mutate-then-check ordering.
// (POST /:app_name/:model/:pk/rollback/)
func (s *Server) RollbackActivity(c echo.Context) error {
	ctx := c.Request().Context()

	params, err := resolveParams(c, "app_name", "model", "pk")
	if err != nil {
		return notFound(err)
	}
	if _, err := s.Registry.LocateModel(params); err != nil {
		return notFound(err)
	}

	denial, err := s.Guard.Check(ctx, actorFrom(c), params)
	if err != nil {
		return mapErr(err)
	}
	if denial != nil {
		return s.respond(c, Denied{Reason: denial.Reason})
	}

	inst, err := s.Store.GetInstance(ctx, params.PK)
	if err != nil {
		if isLookupError(err) {
			return notFound(err)
		}
		return err
	}

	err = s.Store.WithinTx(ctx, func(tx repository.ActivityStore) error {
		return s.Flow.RollbackTask(ctx, tx, inst)
	})
	if err != nil {
		if isLookupError(err) {
			return notFound(err)
		}
		return err
	}

	s.metrics.record(ctx, "rollback", params.AppName)
	return s.respond(c, Redirect{URL: urlWorkflowDetail(params.AppName)})
}

// DeleteActivity deletes an activity instance and redirects to the workflow
// detail for its app. Delete is guarded like every other mutation.
// (POST /:app_name/:model/:pk/delete/)
func (s *Server) DeleteActivity(c echo.Context) error {
	ctx := c.Request().Context()

	params, err := resolveParams(c, "app_name", "model", "pk")
	if err != nil {
		return notFound(err)
	}
	if _, err := s.Registry.LocateModel(params); err != nil {
		return notFound(err)
	}

	denial, err := s.Guard.Check(ctx, actorFrom(c), params)
	if err != nil {
		return mapErr(err)
	}
	if denial != nil {
		return s.respond(c, Denied{Reason: denial.Reason})
	}

	err = s.Store.WithinTx(ctx, func(tx repository.ActivityStore) error {
		return tx.DeleteInstance(ctx, params.PK)
	})
	if err != nil {
		if isLookupError(err) {
			return notFound(err)
		}
		return err
	}

	s.metrics.record(ctx, "delete", params.AppName)
	return s.respond(c, Redirect{URL: urlWorkflowDetail(params.AppName)})
}

// nextHint resolves the next-step hint for the update form, or nil when the
// instance backs the last step.
func (s *Server) nextHint(inst *models.ActivityInstance) any {
	if next, ok := s.Flow.Next(inst); ok {
		return next
	}
	return nil
}
