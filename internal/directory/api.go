package directory

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dhawalhost/authgate/pkg/apperr"
	"github.com/dhawalhost/authgate/pkg/middleware"
)

// Actions checked by the route guards.
const (
	ActionListOrgs     = "authorization:organizations:list"
	ActionReadOrg      = "authorization:organizations:read"
	ActionCreateOrg    = "authorization:organizations:create"
	ActionUpdateOrg    = "authorization:organizations:update"
	ActionDeleteOrg    = "authorization:organizations:delete"
	ActionListTeams    = "authorization:teams:list"
	ActionReadTeam     = "authorization:teams:read"
	ActionCreateTeam   = "authorization:teams:create"
	ActionUpdateTeam   = "authorization:teams:update"
	ActionDeleteTeam   = "authorization:teams:delete"
	ActionMoveTeam     = "authorization:teams:move"
	ActionManageMember = "authorization:teams:members"
	ActionListUsers    = "authorization:users:list"
	ActionReadUser     = "authorization:users:read"
	ActionCreateUser   = "authorization:users:create"
	ActionUpdateUser   = "authorization:users:update"
	ActionDeleteUser   = "authorization:users:delete"
)

// HTTPHandler handles directory HTTP requests.
type HTTPHandler struct {
	svc    Service
	logger *zap.Logger
}

// NewHTTPHandler creates a new directory HTTP handler.
func NewHTTPHandler(svc Service, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers organization, team and user endpoints. Every
// route is protected by the guard.
func (h *HTTPHandler) RegisterRoutes(router gin.IRouter, guard middleware.Guard) {
	orgs := router.Group("/organizations")
	orgs.GET("", guard(ActionListOrgs, orgResource), h.listOrganizations)
	orgs.POST("", guard(ActionCreateOrg, orgResource), h.createOrganization)
	orgs.GET("/:id", guard(ActionReadOrg, orgIDResource), h.getOrganization)
	orgs.PUT("/:id", guard(ActionUpdateOrg, orgIDResource), h.updateOrganization)
	orgs.DELETE("/:id", guard(ActionDeleteOrg, orgIDResource), h.deleteOrganization)

	teams := router.Group("/teams")
	teams.GET("", guard(ActionListTeams, teamResource), h.listTeams)
	teams.POST("", guard(ActionCreateTeam, teamResource), h.createTeam)
	teams.GET("/:id", guard(ActionReadTeam, teamIDResource), h.getTeam)
	teams.PUT("/:id", guard(ActionUpdateTeam, teamIDResource), h.updateTeam)
	teams.DELETE("/:id", guard(ActionDeleteTeam, teamIDResource), h.deleteTeam)
	teams.PUT("/:id/parent", guard(ActionMoveTeam, teamIDResource), h.moveTeam)
	teams.GET("/:id/members", guard(ActionReadTeam, teamIDResource), h.listTeamMembers)
	teams.PUT("/:id/members/:userId", guard(ActionManageMember, teamIDResource), h.addTeamMember)
	teams.DELETE("/:id/members/:userId", guard(ActionManageMember, teamIDResource), h.removeTeamMember)

	users := router.Group("/users")
	users.GET("", guard(ActionListUsers, userResource), h.listUsers)
	users.POST("", guard(ActionCreateUser, userResource), h.createUser)
	users.GET("/:id", guard(ActionReadUser, userIDResource), h.getUser)
	users.PUT("/:id", guard(ActionUpdateUser, userIDResource), h.updateUser)
	users.DELETE("/:id", guard(ActionDeleteUser, userIDResource), h.deleteUser)
	users.GET("/:id/teams", guard(ActionReadUser, userIDResource), h.listUserTeams)
}

func orgResource(c *gin.Context) string {
	return "/authorization/organization"
}

func orgIDResource(c *gin.Context) string {
	return "/authorization/organization/" + c.Param("id")
}

func teamResource(c *gin.Context) string {
	org, _ := middleware.EffectiveOrgFromGinContext(c)
	return "/authorization/team/" + org
}

func teamIDResource(c *gin.Context) string {
	org, _ := middleware.EffectiveOrgFromGinContext(c)
	return "/authorization/team/" + org + "/" + c.Param("id")
}

func userResource(c *gin.Context) string {
	org, _ := middleware.EffectiveOrgFromGinContext(c)
	return "/authorization/user/" + org
}

func userIDResource(c *gin.Context) string {
	org, _ := middleware.EffectiveOrgFromGinContext(c)
	return "/authorization/user/" + org + "/" + c.Param("id")
}

func (h *HTTPHandler) orgID(c *gin.Context) (string, bool) {
	orgID, err := middleware.EffectiveOrgFromGinContext(c)
	if err != nil {
		h.respondError(c, apperr.Validation("organization not resolved for request"))
		return "", false
	}
	return orgID, true
}

func (h *HTTPHandler) listOrganizations(c *gin.Context) {
	orgs, err := h.svc.ListOrganizations(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orgs, "total": len(orgs)})
}

func (h *HTTPHandler) createOrganization(c *gin.Context) {
	var in OrganizationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	org, err := h.svc.CreateOrganization(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

func (h *HTTPHandler) getOrganization(c *gin.Context) {
	org, err := h.svc.GetOrganization(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func (h *HTTPHandler) updateOrganization(c *gin.Context) {
	var in OrganizationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	org, err := h.svc.UpdateOrganization(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func (h *HTTPHandler) deleteOrganization(c *gin.Context) {
	if err := h.svc.DeleteOrganization(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) listTeams(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	teams, err := h.svc.ListTeams(c.Request.Context(), orgID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": teams, "total": len(teams)})
}

func (h *HTTPHandler) createTeam(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var in TeamInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	team, err := h.svc.CreateTeam(c.Request.Context(), orgID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, team)
}

func (h *HTTPHandler) getTeam(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	team, err := h.svc.GetTeam(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, team)
}

func (h *HTTPHandler) updateTeam(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var in TeamInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	team, err := h.svc.UpdateTeam(c.Request.Context(), orgID, c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, team)
}

func (h *HTTPHandler) deleteTeam(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteTeam(c.Request.Context(), orgID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) moveTeam(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var body struct {
		ParentID *string `json:"parent_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	team, err := h.svc.MoveTeam(c.Request.Context(), orgID, c.Param("id"), body.ParentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, team)
}

func (h *HTTPHandler) listTeamMembers(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	users, err := h.svc.ListTeamMembers(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users, "total": len(users)})
}

func (h *HTTPHandler) addTeamMember(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	err := h.svc.AddTeamMember(c.Request.Context(), orgID, c.Param("id"), c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) removeTeamMember(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	err := h.svc.RemoveTeamMember(c.Request.Context(), orgID, c.Param("id"), c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) listUsers(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	users, err := h.svc.ListUsers(c.Request.Context(), orgID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users, "total": len(users)})
}

func (h *HTTPHandler) createUser(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var in UserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	user, err := h.svc.CreateUser(c.Request.Context(), orgID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *HTTPHandler) getUser(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	user, err := h.svc.GetUser(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *HTTPHandler) updateUser(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	var in UserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Validation("invalid request body: %v", err))
		return
	}
	user, err := h.svc.UpdateUser(c.Request.Context(), orgID, c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *HTTPHandler) deleteUser(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteUser(c.Request.Context(), orgID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) listUserTeams(c *gin.Context) {
	orgID, ok := h.orgID(c)
	if !ok {
		return
	}
	teams, err := h.svc.ListUserTeams(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": teams, "total": len(teams)})
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
		h.logger.Error("directory request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
