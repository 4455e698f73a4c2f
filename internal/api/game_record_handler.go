package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/imposter-game/internal/errors"
	"github.com/wfunc/imposter-game/internal/models"
	"github.com/wfunc/imposter-game/internal/repository"
	"gorm.io/gorm"
)

// GameRecordHandler 对局记录处理器
type GameRecordHandler struct {
	records repository.GameRecordRepository
}

// NewGameRecordHandler 创建对局记录处理器
func NewGameRecordHandler(records repository.GameRecordRepository) *GameRecordHandler {
	return &GameRecordHandler{records: records}
}

// available 未配置数据库时返回错误
func (h *GameRecordHandler) available(c *gin.Context) bool {
	if h.records == nil {
		respondError(c, apperrors.New(apperrors.ErrNotImplemented, "未启用对局记录"))
		return false
	}
	return true
}

// ListGames 分页查询已结束的对局
func (h *GameRecordHandler) ListGames(c *gin.Context) {
	if !h.available(c) {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	p := repository.NewPagination(page, pageSize)

	var (
		records []*models.GameRecord
		err     error
	)
	if code := c.Query("room_code"); code != "" {
		records, err = h.records.FindByRoomCode(c.Request.Context(), code, p)
	} else {
		records, err = h.records.List(c.Request.Context(), p)
	}
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"games":      records,
		"pagination": p,
	})
}

// GetGame 获取单个对局
func (h *GameRecordHandler) GetGame(c *gin.Context) {
	if !h.available(c) {
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.Newf(apperrors.ErrInvalidParam, "无效的对局ID: %s", c.Param("id")))
		return
	}

	record, err := h.records.FindByID(c.Request.Context(), uint(id))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, apperrors.Newf(apperrors.ErrNotFound, "对局ID: %d", id))
		return
	}
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetStatistics 胜负统计，days 为统计天数
func (h *GameRecordHandler) GetStatistics(c *gin.Context) {
	if !h.available(c) {
		return
	}

	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 {
		respondError(c, apperrors.Newf(apperrors.ErrInvalidParam, "无效的天数: %s", c.Query("days")))
		return
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	stats, err := h.records.GetWinStatistics(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}
	c.JSON(http.StatusOK, stats)
}
