package api

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"flowportal/pkg/models"
)

// ErrMissingParameter is returned when a required route parameter is absent.
var ErrMissingParameter = errors.New("missing request parameter")

// resolveParams extracts the (app_name, model, pk) triple from the routed
// request path. Only the named keys are required; pk must parse as a positive
// integer when requested. The function has no side effects.
func resolveParams(c echo.Context, required ...string) (models.RequestParams, error) {
	params := models.RequestParams{
		AppName:    c.Param("app_name"),
		ModelTitle: c.Param("model"),
	}

	for _, key := range required {
		switch key {
		case "app_name":
			if params.AppName == "" {
				return models.RequestParams{}, fmt.Errorf("%w: app_name", ErrMissingParameter)
			}
		case "model":
			if params.ModelTitle == "" {
				return models.RequestParams{}, fmt.Errorf("%w: model", ErrMissingParameter)
			}
		case "pk":
			raw := c.Param("pk")
			if raw == "" {
				return models.RequestParams{}, fmt.Errorf("%w: pk", ErrMissingParameter)
			}
			pk, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || pk <= 0 {
				return models.RequestParams{}, fmt.Errorf("%w: pk %q is not a valid identifier", ErrMissingParameter, raw)
			}
			params.PK = pk
		}
	}

	return params, nil
}
