package web

import (
	"errors"

	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func notFoundType(err error) string {
	switch {
	case errors.Is(err, persistence.ErrFlowNotFound):
		return "flow_not_found"
	case errors.Is(err, persistence.ErrExecutionNotFound):
		return "execution_not_found"
	case errors.Is(err, persistence.ErrConnectorNotFound):
		return "connector_not_found"
	default:
		return "not_found"
	}
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	var execErr *protocol.ExecutionError

	switch {
	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case services.IsNotFoundError(err):
		return notFound(c, notFoundType(err), err.Error())

	case errors.As(err, &execErr):
		// The upstream API or its token endpoint failed.
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType(string(execErr.Kind)).
			WithDetail(execErr.Message)

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
