package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RoomHandler 房间查询处理器
type RoomHandler struct {
	rooms RoomService
}

// NewRoomHandler 创建房间处理器
func NewRoomHandler(rooms RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// GetRoom 获取房间公开状态
func (h *RoomHandler) GetRoom(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	snap, err := h.rooms.Snapshot(code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetRoomStats 获取房间统计
func (h *RoomHandler) GetRoomStats(c *gin.Context) {
	phases := make(map[string]int)
	for phase, n := range h.rooms.RoomStats() {
		phases[string(phase)] = n
	}
	c.JSON(http.StatusOK, gin.H{
		"active_rooms": h.rooms.ActiveRooms(),
		"phases":       phases,
	})
}
