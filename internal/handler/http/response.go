package http

import (
	"github.com/gin-gonic/gin"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/dto"
)

func ErrorResponse(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, dto.ErrorResponse{Error: message})
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}
