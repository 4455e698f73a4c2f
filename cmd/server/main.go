package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/wfunc/imposter-game/internal/api"
	"github.com/wfunc/imposter-game/internal/config"
	"github.com/wfunc/imposter-game/internal/database"
	apperrors "github.com/wfunc/imposter-game/internal/errors"
	"github.com/wfunc/imposter-game/internal/game"
	"github.com/wfunc/imposter-game/internal/logger"
	"github.com/wfunc/imposter-game/internal/repository"
	ws "github.com/wfunc/imposter-game/internal/websocket"
	"github.com/wfunc/imposter-game/internal/words"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	manager    *game.Manager
	hub        *ws.Hub
	recorder   *game.DatabaseRecorder
	httpServer *http.Server

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		envFile     = flag.String("env", ".env", "环境变量文件")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	// 显示版本信息
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// 显示帮助信息
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载 .env，文件不存在时忽略
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Printf("加载环境变量文件失败: %v\n", err)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 设置系统参数
	setupSystem(&cfg.System)

	// 打印启动信息
	printStartInfo(cfg)

	// 创建服务器实例
	server := NewServer(cfg)

	// 启动服务器
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	// 等待退出信号
	server.WaitForShutdown()

	// 优雅关闭
	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动卧底词语游戏服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	// 初始化各个组件
	if err := s.initComponents(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "初始化组件失败")
	}

	// 启动各个服务
	if err := s.startServices(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "启动服务失败")
	}

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", s.addr()),
		zap.String("websocket", s.cfg.WebSocket.Path),
	)

	return nil
}

// addr 监听地址
func (s *Server) addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	s.logger.Info("初始化组件...")

	// 初始化数据库
	if err := s.initDatabase(); err != nil {
		return err
	}

	// 初始化游戏
	if err := s.initGame(); err != nil {
		return err
	}

	// 初始化WebSocket
	s.hub = ws.NewHub(s.manager, ws.Options{
		WriteWait:      s.cfg.WebSocket.WriteTimeout,
		PongWait:       s.cfg.WebSocket.PongTimeout,
		PingPeriod:     s.cfg.WebSocket.PingInterval,
		MaxMessageSize: s.cfg.WebSocket.MaxMessageSize,
		SendBufferSize: s.cfg.WebSocket.SendBufferSize,
	}, logger.GetModuleLogger("websocket"))
	s.manager.SetNotifier(s.hub)

	// 初始化HTTP服务
	router := api.NewRouter(&api.RouterConfig{
		Rooms:     s.manager,
		Records:   repository.NewGameRecordRepository(database.GetDB()),
		Hub:       s.hub,
		DB:        api.PingFunc(database.Ping),
		WebSocket: s.cfg.WebSocket,
		Mode:      s.cfg.Server.Mode,
		Logger:    logger.GetModuleLogger("api"),
	})
	s.httpServer = &http.Server{
		Addr:         s.addr(),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.logger.Info("所有组件初始化完成")
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...")

	// 初始化数据库连接
	if err := database.Init(&s.cfg.Database); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	// 自动迁移数据库
	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	// 检查数据库连接
	if !database.IsConnected() {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.logger.Info("数据库初始化完成")
	return nil
}

// initGame 初始化词库、对局记录和房间管理器
func (s *Server) initGame() error {
	g := &s.cfg.Game
	gameLogger := logger.GetModuleLogger("game")

	var supplier words.Supplier = words.Default()
	if g.WordsFile != "" {
		list, err := words.LoadFile(g.WordsFile)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrConfigLoad, "加载词库失败")
		}
		supplier = list
		s.logger.Info("词库已加载",
			zap.String("file", g.WordsFile),
			zap.Int("pairs", list.Len()))
	}

	s.recorder = game.NewDatabaseRecorder(
		repository.NewGameRecordRepository(database.GetDB()), gameLogger, 64)

	settings, durations := gameDefaults(g)
	s.manager = game.NewManager(&game.ManagerConfig{
		Logger:      gameLogger,
		Words:       supplier,
		Recorder:    s.recorder,
		Settings:    settings,
		Durations:   durations,
		MinPlayers:  g.MinPlayers,
		MaxPlayers:  g.MaxPlayers,
		CodeLength:  g.RoomCodeLength,
		IdleTimeout: g.IdleRoomTimeout,
	})
	return nil
}

// gameDefaults 配置转换为房间默认设置
func gameDefaults(g *config.GameConfig) (game.Settings, game.Durations) {
	settings := game.Settings{
		ImposterCount: g.ImposterCount,
		MessageTime:   g.MessageTime,
		VoteTime:      g.VoteTime,
		MaxRounds:     g.MaxRounds,
	}
	durations := game.Durations{
		WordAssignment: g.Phases.WordAssignment,
		PreVoting:      g.Phases.PreVoting,
		VoteReveal:     g.Phases.VoteReveal,
		Results:        g.Phases.Results,
		RoundEnd:       g.Phases.RoundEnd,
	}
	return settings, durations
}

// startServices 启动服务
func (s *Server) startServices() error {
	s.logger.Info("启动服务...")

	// 对局记录写库
	s.recorder.Start()

	// WebSocket Hub
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()

	// 空闲房间清理
	s.manager.StartCleanupTask(s.ctx, s.cfg.Game.CleanupInterval)

	// HTTP服务器
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("HTTP服务器开始监听", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP服务器异常退出", zap.Error(err))
		}
	}()

	s.logger.Info("所有服务启动完成")
	return nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	// 创建信号通道
	sigCh := make(chan os.Signal, 1)

	// 监听系统信号
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)

	// 等待信号
	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))

	// 发送关闭信号
	close(s.shutdownCh)
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	// 创建超时上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求
	s.logger.Info("停止接收新请求...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务器关闭失败", zap.Error(err))
	}

	// 取消主上下文，触发所有goroutine退出
	s.cancel()

	// 等待所有服务关闭
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	// 等待关闭完成或超时
	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return apperrors.New(apperrors.ErrTimeout, "关闭超时")
	}

	// 关闭各个组件
	if err := s.closeComponents(); err != nil {
		s.logger.Error("关闭组件失败", zap.Error(err))
		return err
	}

	// 同步日志
	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}

	return nil
}

// closeComponents 关闭组件
func (s *Server) closeComponents() error {
	s.logger.Info("关闭组件...")

	// 关闭所有房间，取消计时
	s.manager.Shutdown()

	// 写完剩余的对局记录
	s.recorder.Stop()

	// 关闭数据库连接
	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	s.logger.Info("所有组件已关闭")
	return nil
}

// reloadConfig 重新加载配置
func (s *Server) reloadConfig(newCfg *config.Config) {
	s.cfg = newCfg

	// 日志级别
	logger.SetLevel(newCfg.Log.Level)

	// 新建房间使用新的默认设置
	settings, durations := gameDefaults(&newCfg.Game)
	s.manager.UpdateDefaults(settings, durations)

	s.logger.Info("配置重新加载完成")
}

// setupSystem 设置系统参数
func setupSystem(cfg *config.SystemConfig) {
	// 设置时区
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			time.Local = loc
		}
	}

	// 设置最大处理器数
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}

	// 设置文件描述符限制（Unix系统）
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err == nil {
		rLimit.Cur = rLimit.Max
		syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("卧底词语游戏服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("卧底词语游戏服务器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  imposter-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  IMPOSTER_SERVER_PORT        HTTP端口")
	fmt.Println("  IMPOSTER_DATABASE_DRIVER    数据库驱动 (sqlite/mysql/postgres)")
	fmt.Println("  IMPOSTER_DATABASE_DSN       数据库连接串")
	fmt.Println("  IMPOSTER_GAME_MESSAGE_TIME  默认发言时长")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  imposter-server -config=/path/to/config.yaml")
	fmt.Println("  imposter-server -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("                    卧底词语游戏服务器")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("版本: %s | 模式: %s | PID: %d\n", Version, cfg.Server.Mode, os.Getpid())
	fmt.Printf("数据库: %s | 最大轮数: %d | 内鬼人数: %d\n",
		cfg.Database.Driver, cfg.Game.MaxRounds, cfg.Game.ImposterCount)
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
