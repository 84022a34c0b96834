package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/AnatolyKozmin/Shend/internal/models"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
	"github.com/AnatolyKozmin/Shend/pkg/response"
)

// RequireCapability rejects principals lacking any of caps.
func RequireCapability(caps ...models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := PrincipalFromContext(c)
		if principal == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		for _, capability := range caps {
			if !principal.Can(capability) {
				response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "missing capability "+string(capability)))
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
