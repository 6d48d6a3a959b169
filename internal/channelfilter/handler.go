package channelfilter

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"switchyard/internal/constants"
	"switchyard/internal/filterstore"
	"switchyard/internal/logger"
	"switchyard/internal/permissions"
	"switchyard/internal/routing"
	"switchyard/pkg/errors"
	"switchyard/pkg/matcher"
)

const (
	ActionList              = "list"
	ActionRetrieve          = "retrieve"
	ActionCreate            = "create"
	ActionUpdate            = "update"
	ActionDestroy           = "destroy"
	ActionMoveToPosition    = "move_to_position"
	ActionConvertToTemplate = "convert_from_regex_to_jinja2"
	ActionAudit             = "audit"
	ActionCreateIntegration = "create_integration"
	ActionDebugRoute        = "debug_route"
)

// Actions lists every action the handler routes; each must be declared
// in HasRequiredPermissions.
var Actions = []string{
	ActionList, ActionRetrieve, ActionCreate, ActionUpdate, ActionDestroy,
	ActionMoveToPosition, ActionConvertToTemplate, ActionAudit,
	ActionCreateIntegration, ActionDebugRoute,
}

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) HasRequiredPermissions() permissions.PermissionSet {
	read := []permissions.Permission{permissions.IntegrationsRead}
	write := []permissions.Permission{permissions.IntegrationsWrite}
	return permissions.PermissionSet{
		ActionList:              read,
		ActionRetrieve:          read,
		ActionAudit:             read,
		ActionDebugRoute:        read,
		ActionCreate:            write,
		ActionUpdate:            write,
		ActionDestroy:           write,
		ActionMoveToPosition:    write,
		ActionConvertToTemplate: write,
		ActionCreateIntegration: write,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter, gate *permissions.Gate, actorHeader string) {
	guard := func(action string) gin.HandlerFunc {
		return permissions.RequirePermissions(gate, h, action, actorHeader)
	}

	v1 := router.Group("/api/v1")
	{
		integrations := v1.Group("/integrations")
		{
			integrations.POST("", guard(ActionCreateIntegration), h.CreateIntegration)
			integrations.GET("/:integration_id/channel_filters", guard(ActionList), h.List)
			integrations.POST("/:integration_id/route", guard(ActionDebugRoute), h.Route)
		}

		filters := v1.Group("/channel_filters")
		{
			filters.POST("", guard(ActionCreate), h.Create)
			filters.GET("/:id", guard(ActionRetrieve), h.Get)
			filters.PUT("/:id", guard(ActionUpdate), h.Update)
			filters.DELETE("/:id", guard(ActionDestroy), h.Delete)
			filters.PUT("/:id/move_to_position", guard(ActionMoveToPosition), h.MoveToPosition)
			filters.POST("/:id/convert_from_regex_to_jinja2", guard(ActionConvertToTemplate), h.ConvertToTemplate)
			filters.GET("/:id/audit", guard(ActionAudit), h.AuditLogs)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.logger.DebugwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
}

// bindAlertJSON is ShouldBindJSON with numbers kept as json.Number, so an
// integer in an alert payload is not widened to a float before matching.
func bindAlertJSON(c *gin.Context, obj interface{}) error {
	if c.Request.Body == nil {
		return errors.ErrBadRequest.WithDetail("message", "request body is required")
	}
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(obj); err != nil {
		return err
	}
	return binding.Validator.ValidateStruct(obj)
}

func (h *Handler) CreateIntegration(c *gin.Context) {
	var req CreateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	filter, err := h.service.CreateIntegration(requestContext(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(filter))
}

func (h *Handler) List(c *gin.Context) {
	filters, err := h.service.List(c.Request.Context(), c.Param("integration_id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	out := make([]Response, len(filters))
	for i := range filters {
		out[i] = toResponse(&filters[i])
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	filter, err := h.service.Create(requestContext(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(filter))
}

func (h *Handler) Get(c *gin.Context) {
	filter, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(filter))
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	filter, err := h.service.Update(requestContext(c), c.Param("id"), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(filter))
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(requestContext(c), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MoveToPosition(c *gin.Context) {
	raw := c.Query("position")
	if raw == "" {
		h.handleError(c, errors.ErrBadRequest.WithDetail("message", "Position was not provided"))
		return
	}
	position, err := strconv.Atoi(raw)
	if err != nil {
		h.handleError(c, errors.ErrBadRequest.WithDetail("message", "Invalid position"))
		return
	}

	filter, err := h.service.MoveToPosition(requestContext(c), c.Param("id"), position)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(filter))
}

func (h *Handler) ConvertToTemplate(c *gin.Context) {
	filter, err := h.service.ConvertToTemplate(requestContext(c), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(filter))
}

func (h *Handler) AuditLogs(c *gin.Context) {
	logs, err := h.service.AuditLogs(c.Request.Context(), c.Param("id"), parseLimit(c.Query("limit")))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) Route(c *gin.Context) {
	var req RouteRequest
	if err := bindAlertJSON(c, &req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.service.Route(c.Request.Context(), c.Param("integration_id"), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRouteResponse(result))
}

func requestContext(c *gin.Context) context.Context {
	return WithClientIP(c.Request.Context(), c.ClientIP())
}

func toResponse(filter *filterstore.ChannelFilter) Response {
	resp := Response{ChannelFilter: *filter}
	if preview := matcher.PreviewAsTemplate(specOf(filter)); preview != "" {
		resp.FilteringTermAsJinja2 = &preview
	}
	return resp
}

func toRouteResponse(result routing.MatchResult) RouteResponse {
	evaluated := result.Evaluated
	if evaluated == nil {
		evaluated = []routing.FilterOutcome{}
	}
	return RouteResponse{
		ChannelFilter: toResponse(&result.Filter),
		Matched:       result.Matched,
		Evaluated:     evaluated,
	}
}

func parseLimit(limitStr string) int {
	if limitStr == "" {
		return constants.DefaultAuditLimit
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 || parsed > constants.MaxAuditLimit {
		return constants.DefaultAuditLimit
	}
	return parsed
}
