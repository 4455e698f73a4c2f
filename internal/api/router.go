package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/imposter-game/internal/config"
	apperrors "github.com/wfunc/imposter-game/internal/errors"
	"github.com/wfunc/imposter-game/internal/game"
	"github.com/wfunc/imposter-game/internal/middleware"
	"github.com/wfunc/imposter-game/internal/repository"
	ws "github.com/wfunc/imposter-game/internal/websocket"
	"go.uber.org/zap"
)

// RoomService 房间查询接口（由 game.Manager 实现）
type RoomService interface {
	Snapshot(code string) (*game.PublicSnapshot, error)
	ActiveRooms() int
	RoomStats() map[game.Phase]int
}

// Pinger 数据库连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 函数适配器
type PingFunc func(ctx context.Context) error

// Ping 实现 Pinger
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// RouterConfig 路由依赖
type RouterConfig struct {
	Rooms     RoomService
	Records   repository.GameRecordRepository
	Hub       *ws.Hub
	DB        Pinger
	WebSocket config.WebSocketConfig
	Mode      string
	Logger    *zap.Logger
}

// Router API路由器
type Router struct {
	engine    *gin.Engine
	rooms     RoomService
	db        Pinger
	hub       *ws.Hub
	roomH     *RoomHandler
	recordH   *GameRecordHandler
	wsHandler *WebSocketHandler
	wsPath    string
	log       *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(cfg *RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	switch cfg.Mode {
	case "production", gin.ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case gin.TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery(cfg.Logger))
	engine.Use(middleware.Logger(cfg.Logger))

	router := &Router{
		engine:  engine,
		rooms:   cfg.Rooms,
		db:      cfg.DB,
		hub:     cfg.Hub,
		roomH:   NewRoomHandler(cfg.Rooms),
		recordH: NewGameRecordHandler(cfg.Records),
		wsPath:  cfg.WebSocket.Path,
		log:     cfg.Logger,
	}
	if router.wsPath == "" {
		router.wsPath = "/ws"
	}
	if cfg.Hub != nil {
		router.wsHandler = NewWebSocketHandler(cfg.Hub, cfg.WebSocket, cfg.Logger)
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		rooms := v1.Group("/rooms")
		{
			rooms.GET("", r.roomH.GetRoomStats)
			rooms.GET("/:code", r.roomH.GetRoom)
		}

		games := v1.Group("/games")
		{
			games.GET("", r.recordH.ListGames)
			games.GET("/stats", r.recordH.GetStatistics)
			games.GET("/:id", r.recordH.GetGame)
		}
	}

	// WebSocket路由
	if r.wsHandler != nil {
		r.engine.GET(r.wsPath, r.wsHandler.GameWebSocket)
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		respondError(c, apperrors.New(apperrors.ErrNotFound, "接口不存在"))
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status":       "healthy",
		"message":      "服务运行正常",
		"active_rooms": r.rooms.ActiveRooms(),
	}
	if r.hub != nil {
		resp["connections"] = r.hub.GetOnlineCount()
	}

	// 检查数据库连接
	if r.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := r.db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "数据库ping失败",
				"details": err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Handler 返回HTTP处理器
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// respondError 按错误码返回统一错误响应
func respondError(c *gin.Context, err error) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	// 不返回调用栈
	resp := *appErr
	resp.Stack = nil
	c.JSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(&resp, middleware.GetRequestID(c)))
}
