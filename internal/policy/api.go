package policy

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dhawalhost/authgate/pkg/apperr"
	"github.com/dhawalhost/authgate/pkg/middleware"
)

// Actions checked by the route guards.
const (
	ActionListPolicies  = "authorization:policies:list"
	ActionReadPolicy    = "authorization:policies:read"
	ActionCreatePolicy  = "authorization:policies:create"
	ActionUpdatePolicy  = "authorization:policies:update"
	ActionDeletePolicy  = "authorization:policies:delete"
	ActionListAttached  = "authorization:attachments:list"
	ActionAttachPolicy  = "authorization:attachments:create"
	ActionAmendPolicy   = "authorization:attachments:amend"
	ActionReplacePolicy = "authorization:attachments:replace"
	ActionDetachPolicy  = "authorization:attachments:delete"
)

// HTTPHandler handles policy management HTTP requests.
type HTTPHandler struct {
	svc    Service
	logger *zap.Logger
}

// NewHTTPHandler creates a new policy HTTP handler.
func NewHTTPHandler(svc Service, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers policy and attachment endpoints. Every route
// is protected by the guard.
func (h *HTTPHandler) RegisterRoutes(router gin.IRouter, guard middleware.Guard) {
	policies := router.Group("/policies")
	policies.GET("", guard(ActionListPolicies, policyResource), h.listPolicies)
	policies.POST("", guard(ActionCreatePolicy, policyResource), h.createPolicy)
	policies.GET("/:id", guard(ActionReadPolicy, policyIDResource), h.getPolicy)
	policies.PUT("/:id", guard(ActionUpdatePolicy, policyIDResource), h.updatePolicy)
	policies.DELETE("/:id", guard(ActionDeletePolicy, policyIDResource), h.deletePolicy)

	shared := router.Group("/shared-policies")
	shared.GET("", guard(ActionListPolicies, sharedPolicyResource), h.listSharedPolicies)
	shared.POST("", guard(ActionCreatePolicy, sharedPolicyResource), h.createSharedPolicy)
	shared.GET("/:id", guard(ActionReadPolicy, sharedPolicyResource), h.getSharedPolicy)
	shared.DELETE("/:id", guard(ActionDeletePolicy, sharedPolicyResource), h.deleteSharedPolicy)

	atts := router.Group("/entities/:kind/:id/attachments")
	atts.GET("", guard(ActionListAttached, entityResource), h.listAttachments)
	atts.POST("", guard(ActionAttachPolicy, entityResource), h.attach)
	atts.PUT("", guard(ActionReplacePolicy, entityResource), h.replace)
	atts.PATCH("", guard(ActionAmendPolicy, entityResource), h.amend)
	atts.DELETE("", guard(ActionDetachPolicy, entityResource), h.detachAll)
	atts.DELETE("/:policyId", guard(ActionDetachPolicy, entityResource), h.detach)
}

func policyResource(c *gin.Context) string {
	org, _ := middleware.EffectiveOrgFromGinContext(c)
	return "/authorization/policy/" + org
}

func policyIDResource(c *gin.Context) string {
	org, _ := middleware.EffectiveOrgFromGinContext(c)
	return "/authorization/policy/" + org + "/" + c.Param("id")
}

func sharedPolicyResource(c *gin.Context) string {
	return "/authorization/policy/shared"
}

func entityResource(c *gin.Context) string {
	org, _ := middleware.EffectiveOrgFromGinContext(c)
	return "/authorization/" + c.Param("kind") + "/" + org + "/" + c.Param("id")
}

func (h *HTTPHandler) orgID(c *gin.Context) (string, bool) {
	orgID, err := middleware.EffectiveOrgFromGinContext(c)
	if err != nil {
		h.respondError(c, apperr.Validation("organization not resolved for request"))
		return "", false
	}
	return orgID, true
}

func entityRef(c *gin.Context) EntityRef {
	return EntityRef{Kind: EntityKind(c.Param("kind")), ID: c.Param("id")}
}

func (h *HTTPHandler) listPolicies(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	policies, err := h.svc.ListPolicies(c.Request.Context(), orgID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": policies, "total": len(policies)})
}

func (h *HTTPHandler) createPolicy(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var in PolicyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	p, err := h.svc.CreatePolicy(c.Request.Context(), orgID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *HTTPHandler) getPolicy(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	p, err := h.svc.GetPolicy(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *HTTPHandler) updatePolicy(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var in PolicyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	p, err := h.svc.UpdatePolicy(c.Request.Context(), orgID, c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *HTTPHandler) deletePolicy(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	if err := h.svc.DeletePolicy(c.Request.Context(), orgID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) listSharedPolicies(c *gin.Context) {
	policies, err := h.svc.ListSharedPolicies(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": policies, "total": len(policies)})
}

func (h *HTTPHandler) createSharedPolicy(c *gin.Context) {
	var in PolicyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	p, err := h.svc.CreateSharedPolicy(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *HTTPHandler) getSharedPolicy(c *gin.Context) {
	p, err := h.svc.GetPolicy(c.Request.Context(), "", c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *HTTPHandler) deleteSharedPolicy(c *gin.Context) {
	if err := h.svc.DeleteSharedPolicy(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) listAttachments(c *gin.Context) {
	atts, err := h.svc.ListAttachments(c.Request.Context(), entityRef(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": atts, "total": len(atts)})
}

func (h *HTTPHandler) attach(c *gin.Context) {
	var req AttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	att, err := h.svc.Attach(c.Request.Context(), entityRef(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, att)
}

func (h *HTTPHandler) replace(c *gin.Context) {
	var body struct {
		Policies []AttachmentRequest `json:"policies"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	atts, err := h.svc.Replace(c.Request.Context(), entityRef(c), body.Policies)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": atts, "total": len(atts)})
}

func (h *HTTPHandler) amend(c *gin.Context) {
	var body struct {
		Amendments []Amendment `json:"amendments"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	atts, err := h.svc.Amend(c.Request.Context(), entityRef(c), body.Amendments)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": atts, "total": len(atts)})
}

func (h *HTTPHandler) detach(c *gin.Context) {
	err := h.svc.Detach(c.Request.Context(), entityRef(c), c.Param("policyId"), c.Query("instance"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) detachAll(c *gin.Context) {
	if err := h.svc.DetachAll(c.Request.Context(), entityRef(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) respondError(c *gin.Context, err error) {
	switch {
	case apperr.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case apperr.IsCrossTenant(err):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		h.logger.Error("policy request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
