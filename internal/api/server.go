// Package api contains the HTTP handlers for the workflow portal.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"flowportal/internal/access"
	"flowportal/internal/logging"
	"flowportal/internal/registry"
	"flowportal/internal/repository"
	"flowportal/internal/services"
	"flowportal/pkg/models"
)

// actorKey is the echo context key under which the auth middleware stores the
// authenticated actor.
const actorKey = "actor"

// Server holds the dependencies for the portal handlers. The guard is held by
// reference and called explicitly; nothing is inherited.
type Server struct {
	Store    repository.Store
	Registry *registry.Registry
	Guard    access.Guard
	Flow     services.Engine
	Logger   *logging.Logger

	metrics *transitionMetrics
}

// NewServer creates a new Server.
func NewServer(store repository.Store, reg *registry.Registry, guard access.Guard, flow services.Engine, logger *logging.Logger) *Server {
	return &Server{
		Store:    store,
		Registry: reg,
		Guard:    guard,
		Flow:     flow,
		Logger:   logger,
		metrics:  newTransitionMetrics(),
	}
}

// RegisterRoutes mounts the portal routes on the given group. The group is
// expected to already carry the authentication middleware.
func RegisterRoutes(g *echo.Group, s *Server) {
	g.GET("/", s.Workflows)
	g.GET("/:app_name/", s.WorkflowDetail)
	g.GET("/:app_name/:model/create/", s.CreateActivityForm)
	g.POST("/:app_name/:model/create/", s.CreateActivity)
	g.GET("/:app_name/:model/:pk/", s.ViewActivity)
	g.GET("/:app_name/:model/:pk/update/", s.UpdateActivityForm)
	g.POST("/:app_name/:model/:pk/update/", s.UpdateActivity)
	g.POST("/:app_name/:model/:pk/rollback/", s.RollbackActivity)
	g.POST("/:app_name/:model/:pk/delete/", s.DeleteActivity)
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// HandleHealth returns basic health status, including store connectivity.
func (s *Server) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "flowportal",
	}
	if err := s.Store.Ping(c.Request().Context()); err != nil {
		status.Status = "degraded"
	}
	return c.JSON(http.StatusOK, status)
}

// actorFrom returns the authenticated actor stored by the auth middleware.
func actorFrom(c echo.Context) models.Actor {
	if actor, ok := c.Get(actorKey).(models.Actor); ok {
		return actor
	}
	return models.Actor{}
}

// SetActor stores the authenticated actor on the request context. Exported
// for the auth middleware and for tests.
func SetActor(c echo.Context, actor models.Actor) {
	c.Set(actorKey, actor)
}

// notFound maps registry and parameter failures to a framework-level 404,
// keeping the per-request failure semantics in one place.
func notFound(err error) error {
	return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
}

// mapErr converts lookup failures to 404 and passes store faults through to
// the framework error handler.
func mapErr(err error) error {
	if isLookupError(err) {
		return notFound(err)
	}
	return err
}

// isLookupError reports whether err is a routing/configuration mismatch
// rather than a store fault.
func isLookupError(err error) bool {
	return errors.Is(err, registry.ErrUnknownWorkflow) ||
		errors.Is(err, registry.ErrUnknownModel) ||
		errors.Is(err, ErrMissingParameter) ||
		errors.Is(err, repository.ErrNotFound)
}
