package authz

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dhawalhost/authgate/pkg/apperr"
	"github.com/dhawalhost/authgate/pkg/middleware"
	"github.com/dhawalhost/authgate/pkg/observability"
)

// Actions checked by the route guards.
const (
	ActionCheckAccess = "authorization:access:check"
	ActionListActions = "authorization:access:actions"
)

// CheckRequest asks whether a user may perform an action on a resource.
type CheckRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Action   string `json:"action" validate:"required"`
	Resource string `json:"resource" validate:"required"`
}

// ActionsRequest asks which actions a user may perform on a resource.
type ActionsRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Resource string `json:"resource" validate:"required"`
}

// BatchActionsRequest asks ActionsRequest for several resources at once.
type BatchActionsRequest struct {
	UserID    string   `json:"user_id" validate:"required"`
	Resources []string `json:"resources" validate:"required,min=1,dive,required"`
}

// HTTPHandler handles decision HTTP requests.
type HTTPHandler struct {
	svc      Service
	metrics  *observability.Metrics
	logger   *zap.Logger
	validate *validator.Validate
}

// NewHTTPHandler creates a new decision HTTP handler. metrics may be nil.
func NewHTTPHandler(svc Service, metrics *observability.Metrics, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, metrics: metrics, logger: logger, validate: validator.New()}
}

// RegisterRoutes registers the decision endpoints.
func (h *HTTPHandler) RegisterRoutes(router gin.IRouter, guard middleware.Guard) {
	group := router.Group("/authorization")
	group.POST("/check", guard(ActionCheckAccess, accessResource), h.check)
	group.POST("/actions", guard(ActionListActions, accessResource), h.listActions)
	group.POST("/actions/batch", guard(ActionListActions, accessResource), h.listActionsBatch)
}

func accessResource(c *gin.Context) string {
	org, _ := middleware.EffectiveOrgFromGinContext(c)
	return "/authorization/access/" + org
}

func (h *HTTPHandler) orgID(c *gin.Context) (string, bool) {
	orgID, err := middleware.EffectiveOrgFromGinContext(c)
	if err != nil {
		h.respondError(c, apperr.Validation("organization not resolved for request"))
		return "", false
	}
	return orgID, true
}

func (h *HTTPHandler) check(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(c, apperr.Validation("%v", err))
		return
	}

	allowed, err := h.svc.IsAuthorized(c.Request.Context(), req.UserID, req.Action, req.Resource, orgID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordDecision(allowed)
	}
	c.JSON(http.StatusOK, gin.H{"access": allowed})
}

func (h *HTTPHandler) listActions(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var req ActionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(c, apperr.Validation("%v", err))
		return
	}

	actions, err := h.svc.ListActions(c.Request.Context(), req.UserID, req.Resource, orgID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if actions == nil {
		actions = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

func (h *HTTPHandler) listActionsBatch(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var req BatchActionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(c, apperr.Validation("%v", err))
		return
	}

	results, err := h.svc.ListActionsOnResources(c.Request.Context(), req.UserID, req.Resources, orgID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *HTTPHandler) respondError(c *gin.Context, err error) {
	switch {
	case apperr.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.IsCrossTenant(err):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		h.logger.Error("decision request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
