package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/service"
)

// RetryAfterSeconds 是房间繁忙时建议客户端等待的秒数
const RetryAfterSeconds = 1

// HandleServiceError 将服务层错误映射为 HTTP 响应
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidPosition):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRoomNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case service.IsStateConflict(err):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrRoomBusy):
		c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
		ErrorResponse(c, http.StatusServiceUnavailable, err.Error())
	default:
		// 不变量破坏与其他内部错误已在服务层记录，这里不暴露细节
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
