package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/AnatolyKozmin/Shend/internal/middleware"
	"github.com/AnatolyKozmin/Shend/internal/models"
)

func principalFromContext(c *gin.Context) *models.Principal {
	return middleware.PrincipalFromContext(c)
}
