package middleware

import "github.com/gin-gonic/gin"

// Guard builds a middleware that allows the request only when the caller
// is authorized to perform action on the resource derived from the
// request. The resource builder runs after the effective organization has
// been resolved, so it may call EffectiveOrgFromGinContext.
type Guard func(action string, resource func(c *gin.Context) string) gin.HandlerFunc
