package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/domain"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/dto"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/service"
)

// RoomHandler 封装了与房间相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// RegisterRoutes 注册房间路由。group 应已挂载认证中间件。
func (h *RoomHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("", h.ListActiveRooms)
	group.POST("", h.CreateRoom)
	group.GET("/current", h.CurrentRoom)
	group.GET("/history", h.History)
	group.GET("/code/:code", h.GetRoomByCode)
	group.GET("/:roomId", h.GetRoom)
	group.POST("/:roomId/join", h.JoinRoom)
	group.POST("/:roomId/move", h.MakeMove)
	group.POST("/:roomId/leave", h.LeaveRoom)
}

// currentUserID 从 Gin 上下文中获取认证用户 ID (由 Auth 中间件设置)
func currentUserID(c *gin.Context, op string) (uint, bool) {
	userIDAny, exists := c.Get("user_id")
	if !exists {
		logrus.Warnf("Handler.%s: User ID not found in context, middleware missing or failed?", op)
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	if !ok {
		logrus.Errorf("Handler.%s: User ID in context is not uint", op)
		ErrorResponse(c, http.StatusInternalServerError, "Internal server error processing user ID")
		return 0, false
	}
	return userID, true
}

func stakeFromRequest(req dto.StakeRequest) domain.Stake {
	return domain.Stake{ItemID: req.StakeItemID, ItemName: req.StakeItemName, ItemValue: req.StakeItemValue}
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	// 1. 获取认证用户 ID
	userID, ok := currentUserID(c, "CreateRoom")
	if !ok {
		return
	}

	// 2. 绑定押注物品
	var req dto.StakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Handler.CreateRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	// 3. 调用 Service 层创建房间
	room, err := h.roomService.CreateRoom(c.Request.Context(), userID, stakeFromRequest(req))
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	// 4. 成功响应
	SuccessResponse(c, http.StatusCreated, room)
}

// JoinRoom 处理加入房间的请求
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID, ok := currentUserID(c, "JoinRoom")
	if !ok {
		return
	}

	var req dto.StakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Handler.JoinRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	room, err := h.roomService.JoinRoom(c.Request.Context(), c.Param("roomId"), userID, stakeFromRequest(req))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// MakeMove 处理落子请求
func (h *RoomHandler) MakeMove(c *gin.Context) {
	userID, ok := currentUserID(c, "MakeMove")
	if !ok {
		return
	}

	var req dto.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Handler.MakeMove: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: position is required")
		return
	}

	room, err := h.roomService.MakeMove(c.Request.Context(), c.Param("roomId"), userID, *req.Position)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// LeaveRoom 处理离开房间的请求
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	userID, ok := currentUserID(c, "LeaveRoom")
	if !ok {
		return
	}

	result, err := h.roomService.LeaveRoom(c.Request.Context(), c.Param("roomId"), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, result)
}

// GetRoom 查询单个房间
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.roomService.GetRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// GetRoomByCode 根据分享短码查询房间
func (h *RoomHandler) GetRoomByCode(c *gin.Context) {
	room, err := h.roomService.GetRoomByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// ListActiveRooms 查询活跃房间，可选参数 max_age (如 30m)
func (h *RoomHandler) ListActiveRooms(c *gin.Context) {
	var maxAge time.Duration
	if raw := c.Query("max_age"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			ErrorResponse(c, http.StatusBadRequest, "Invalid max_age, expected a positive duration such as 30m")
			return
		}
		maxAge = d
	}

	rooms, err := h.roomService.ListActiveRooms(c.Request.Context(), maxAge)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": rooms})
}

// CurrentRoom 查询当前用户所在的房间
func (h *RoomHandler) CurrentRoom(c *gin.Context) {
	userID, ok := currentUserID(c, "CurrentRoom")
	if !ok {
		return
	}
	room, err := h.roomService.CurrentRoom(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// History 查询当前用户的历史对局，可选参数 limit
func (h *RoomHandler) History(c *gin.Context) {
	userID, ok := currentUserID(c, "History")
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ErrorResponse(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	rooms, err := h.roomService.History(c.Request.Context(), userID, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": rooms})
}
