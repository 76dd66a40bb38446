package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Result is the explicit outcome of a controller branch. Handlers build a
// Result and one adapter translates it to an HTTP response; no control flow
// rides on panics or framework exceptions.
type Result interface {
	isResult()
}

// Render displays a named template with a context mapping.
type Render struct {
	Template string
	Status   int
	Context  echo.Map
}

// Redirect sends the client to another portal URL.
type Redirect struct {
	URL string
}

// Denied is the recoverable outcome of a failed access check.
type Denied struct {
	Reason string
}

func (Render) isResult()   {}
func (Redirect) isResult() {}
func (Denied) isResult()   {}

// respond writes the Result to the client.
func (s *Server) respond(c echo.Context, res Result) error {
	switch r := res.(type) {
	case Render:
		status := r.Status
		if status == 0 {
			status = http.StatusOK
		}
		return c.Render(status, r.Template, r.Context)
	case Redirect:
		return c.Redirect(http.StatusFound, r.URL)
	case Denied:
		return c.Render(http.StatusForbidden, "denied.html", echo.Map{"reason": r.Reason})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "unhandled result")
	}
}
