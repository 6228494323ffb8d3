// Package web provides HTTP handlers and REST API endpoints for flows, executions and
// connectors.
package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// NodeCatalog describes the registered node types.
type NodeCatalog interface {
	NodeTypes() []models.NodeTypeInfo
}

type APIHandlers struct {
	flowService      *services.Flow
	executionService *services.Execution
	connectorService *services.Connector
	validator        *validator.Validate
	catalog          NodeCatalog
}

func NewAPIHandlers(
	flowService *services.Flow,
	executionService *services.Execution,
	connectorService *services.Connector,
	validator *validator.Validate,
	catalog NodeCatalog,
) *APIHandlers {
	return &APIHandlers{
		flowService:      flowService,
		executionService: executionService,
		connectorService: connectorService,
		validator:        validator,
		catalog:          catalog,
	}
}

// Register mounts every endpoint on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/node-types", h.GetNodeTypes)

	f := router.Group("/flows")
	f.Get("/", h.GetFlows)
	f.Post("/", h.CreateFlow)
	f.Get("/:id", h.GetFlow)
	f.Delete("/:id", h.DeleteFlow)
	f.Get("/:id/executions", h.GetFlowExecutions)
	f.Post("/:id/execute", h.ExecuteFlow)

	e := router.Group("/executions")
	e.Get("/:id", h.GetExecution)
	e.Get("/:id/logs", h.GetExecutionLogs)
	e.Post("/:id/nodes/:nodeId/skip", h.SkipNode)
	e.Delete("/:id/nodes/:nodeId", h.RemoveNode)

	c := router.Group("/connectors")
	c.Post("/", h.CreateConnector)
	c.Get("/:id", h.GetConnector)
	c.Get("/:id/oauth/authorize-url", h.GetAuthorizeURL)
	c.Post("/:id/oauth/callback", h.OAuthCallback)

	router.Post("/use-connector", h.UseConnector)
	router.Post("/test-connector", h.TestConnector)
	router.Post("/oauth-refresh", h.OAuthRefresh)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	nodeTypes := len(h.catalog.NodeTypes())
	registryCheck := strconv.Itoa(nodeTypes) + " node types registered"
	repositoryCheck, repOk := h.flowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Conduit API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if nodeTypes > 0 && repOk {
		status = "healthy"
		message = "Conduit API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	return c.JSON(h.catalog.NodeTypes())
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	flows, err := h.flowService.List(c.Context(), c.Query("owner"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flows)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.flowService.Create(c.Context(), req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	flow, err := h.flowService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	err := h.flowService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetFlowExecutions(c fiber.Ctx) error {
	executions, err := h.flowService.Executions(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) ExecuteFlow(c fiber.Ctx) error {
	var req ExecuteFlowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	// The request context is recycled once the handler returns; the execution outlives it.
	execution, err := h.executionService.Start(context.Background(), c.Params("id"), req.Input)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(ExecuteFlowResponse{ExecutionID: execution.ID})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executionService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionLogs(c fiber.Ctx) error {
	var after int64

	if afterStr := c.Query("after"); afterStr != "" {
		parsed, err := strconv.ParseInt(afterStr, 10, 64)
		if err != nil || parsed < 0 {
			return badRequest(c, "after must be a non-negative integer")
		}

		after = parsed
	}

	logs, err := h.executionService.Logs(c.Context(), c.Params("id"), after)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(logs)
}

func (h *APIHandlers) SkipNode(c fiber.Ctx) error {
	err := h.executionService.Skip(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RemoveNode(c fiber.Ctx) error {
	err := h.executionService.Remove(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateConnector(c fiber.Ctx) error {
	var connector models.Connector
	if err := c.Bind().JSON(&connector); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	created, err := h.connectorService.Create(c.Context(), &connector)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetConnector(c fiber.Ctx) error {
	connector, err := h.connectorService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(connector)
}

func (h *APIHandlers) GetAuthorizeURL(c fiber.Ctx) error {
	url, err := h.connectorService.AuthorizeURL(c.Context(), c.Params("id"), c.Query("state"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(AuthorizeURLResponse{URL: url})
}

func (h *APIHandlers) OAuthCallback(c fiber.Ctx) error {
	var req OAuthCallbackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	connector, err := h.connectorService.Callback(c.Context(), c.Params("id"), req.Code)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(connector)
}

func (h *APIHandlers) UseConnector(c fiber.Ctx) error {
	var req UseConnectorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	req.Method = strings.ToUpper(req.Method)

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	resp, err := h.connectorService.Use(c.Context(), services.UseRequest{
		ConnectorID: req.ConnectorID,
		Connector:   req.Connector,
		Endpoint:    req.Endpoint,
		Method:      req.Method,
		Data:        req.Data,
		Headers:     req.Headers,
		Query:       req.Query,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resp)
}

func (h *APIHandlers) TestConnector(c fiber.Ctx) error {
	var req TestConnectorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	result, err := h.connectorService.Test(c.Context(), req.ConnectorID, req.Connector, req.Endpoint)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) OAuthRefresh(c fiber.Ctx) error {
	var req OAuthRefreshRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	tokens, err := h.connectorService.Refresh(c.Context(), req.ConnectorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(tokens)
}
