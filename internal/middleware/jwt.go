package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AnatolyKozmin/Shend/internal/models"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
	"github.com/AnatolyKozmin/Shend/pkg/response"
)

// ContextPrincipalKey is the gin context key storing the operator principal.
const ContextPrincipalKey = "currentPrincipal"

// OperatorKeyHeader carries a static operator key as an alternative to a
// bearer token.
const OperatorKeyHeader = "X-Operator-Key"

type operatorAuthenticator interface {
	ValidateToken(token string) (*models.Principal, error)
	ValidateKey(key string) (*models.Principal, error)
}

// OperatorAuth requires a valid operator bearer token or operator key.
func OperatorAuth(auth operatorAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			principal *models.Principal
			err       error
		)
		switch header := c.GetHeader("Authorization"); {
		case header != "":
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
				c.Abort()
				return
			}
			principal, err = auth.ValidateToken(parts[1])
		case c.GetHeader(OperatorKeyHeader) != "":
			principal, err = auth.ValidateKey(c.GetHeader(OperatorKeyHeader))
		default:
			err = appErrors.ErrUnauthorized
		}
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextPrincipalKey, principal)
		c.Next()
	}
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(c *gin.Context) *models.Principal {
	value, exists := c.Get(ContextPrincipalKey)
	if !exists {
		return nil
	}
	principal, _ := value.(*models.Principal)
	return principal
}
