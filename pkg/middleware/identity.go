package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultUserHeader carries the id of the user making the request.
const DefaultUserHeader = "Authorization"

// DefaultOrgHeader optionally overrides the organization the request
// operates on. Only users of the root organization may act on an
// organization other than their own; handlers enforce that.
const DefaultOrgHeader = "X-Org-ID"

type identityContextKey string

const (
	callerContextKey identityContextKey = "callerID"
	orgContextKey    identityContextKey = "orgID"
)

// IdentityConfig captures the knobs for identity extraction.
type IdentityConfig struct {
	// UserHeader is inspected for the caller id. Defaults to DefaultUserHeader.
	UserHeader string
	// OrgHeader is inspected for the organization override. Defaults to
	// DefaultOrgHeader.
	OrgHeader string
}

// Identity returns a Gin middleware that reads the caller id and the
// optional organization override from request headers and stores them on
// the context for downstream handlers. Requests without a caller id are
// rejected.
func Identity(cfg IdentityConfig) gin.HandlerFunc {
	userHeader := cfg.UserHeader
	if userHeader == "" {
		userHeader = DefaultUserHeader
	}
	orgHeader := cfg.OrgHeader
	if orgHeader == "" {
		orgHeader = DefaultOrgHeader
	}

	return func(c *gin.Context) {
		callerID := c.GetHeader(userHeader)
		if callerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing caller identity",
			})
			return
		}

		c.Set(string(callerContextKey), callerID)
		ctx := context.WithValue(c.Request.Context(), callerContextKey, callerID)

		if orgID := c.GetHeader(orgHeader); orgID != "" {
			c.Set(string(orgContextKey), orgID)
			ctx = context.WithValue(ctx, orgContextKey, orgID)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CallerIDFromGinContext extracts the caller id stored by Identity.
func CallerIDFromGinContext(c *gin.Context) (string, error) {
	if value, ok := c.Get(string(callerContextKey)); ok {
		if callerID, ok := value.(string); ok && callerID != "" {
			return callerID, nil
		}
	}
	return "", errors.New("caller id not found in context")
}

// OrgOverrideFromGinContext extracts the organization override header
// value, if the request carried one.
func OrgOverrideFromGinContext(c *gin.Context) (string, bool) {
	if value, ok := c.Get(string(orgContextKey)); ok {
		if orgID, ok := value.(string); ok && orgID != "" {
			return orgID, true
		}
	}
	return "", false
}

// SetEffectiveOrg stores the organization the request operates on after
// the authorizer has resolved it.
func SetEffectiveOrg(c *gin.Context, orgID string) {
	c.Set("effectiveOrgID", orgID)
}

// EffectiveOrgFromGinContext extracts the organization stored by
// SetEffectiveOrg.
func EffectiveOrgFromGinContext(c *gin.Context) (string, error) {
	if value, ok := c.Get("effectiveOrgID"); ok {
		if orgID, ok := value.(string); ok && orgID != "" {
			return orgID, nil
		}
	}
	return "", errors.New("organization not resolved for request")
}
