package authz

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dhawalhost/authgate/pkg/apperr"
	"github.com/dhawalhost/authgate/pkg/middleware"
)

// NewGuard returns a route guard that authorizes the caller with the
// decision engine itself: the caller id comes from the request identity,
// the organization is the caller's own unless a root-organization member
// supplied an override, and the action/resource pair is declared per
// route. The resolved organization is stored on the context for the
// handler behind the guard.
func NewGuard(svc Service, logger *zap.Logger) middleware.Guard {
	return func(action string, resource func(c *gin.Context) string) gin.HandlerFunc {
		return func(c *gin.Context) {
			callerID, err := middleware.CallerIDFromGinContext(c)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
				return
			}

			override, _ := middleware.OrgOverrideFromGinContext(c)
			orgID, err := svc.EffectiveOrganization(c.Request.Context(), callerID, override)
			switch {
			case apperr.IsNotFound(err):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown caller"})
				return
			case apperr.IsCrossTenant(err):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
				return
			case err != nil:
				logger.Error("organization resolution failed", zap.Error(err), zap.String("caller", callerID))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
				return
			}
			middleware.SetEffectiveOrg(c, orgID)

			allowed, err := svc.IsAuthorized(c.Request.Context(), callerID, action, resource(c), orgID)
			if err != nil {
				logger.Error("route authorization failed", zap.Error(err),
					zap.String("caller", callerID), zap.String("action", action))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
				return
			}
			if !allowed {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
				return
			}
			c.Next()
		}
	}
}
