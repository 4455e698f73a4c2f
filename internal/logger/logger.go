package logger

import (
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wfunc/imposter-game/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	base *zap.Logger
	once sync.Once
	mu   sync.RWMutex

	// 按模块名缓存的日志器，未单独配置级别的模块使用全局级别
	moduleLoggers = make(map[string]*zap.Logger)

	// 全局日志级别，配置热加载时调整
	atomicLevel = zap.NewAtomicLevel()
)

// sinks 日志输出目标
type sinks struct {
	encoder zapcore.Encoder
	outputs []zapcore.WriteSyncer
	errors  zapcore.WriteSyncer
}

// tee 以给定级别组合所有输出，错误日志额外写入 error.log
func (s *sinks) tee(level zapcore.LevelEnabler) zapcore.Core {
	cores := make([]zapcore.Core, 0, len(s.outputs)+1)
	for _, out := range s.outputs {
		cores = append(cores, zapcore.NewCore(s.encoder, out, level))
	}
	if s.errors != nil {
		cores = append(cores, zapcore.NewCore(s.encoder, s.errors, zapcore.ErrorLevel))
	}
	return zapcore.NewTee(cores...)
}

// Init 初始化日志系统
func Init(cfg *config.LogConfig) error {
	var err error
	once.Do(func() {
		atomicLevel.SetLevel(parseLevel(cfg.Level))

		var s *sinks
		if s, err = newSinks(cfg); err != nil {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		base = zap.New(s.tee(atomicLevel), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
		for module, levelStr := range cfg.Modules {
			moduleLoggers[module] = zap.New(s.tee(parseLevel(levelStr)), zap.AddCaller()).Named(module)
		}
	})
	return err
}

// newSinks 根据配置创建编码器和输出
func newSinks(cfg *config.LogConfig) (*sinks, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder

	s := &sinks{}
	if cfg.Format == "json" {
		s.encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		s.encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	if cfg.Output == "stdout" || cfg.Output == "both" || cfg.Output == "" {
		s.outputs = append(s.outputs, zapcore.Lock(os.Stdout))
	}

	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(cfg.File.Path, 0755); err != nil {
			return nil, err
		}
		s.outputs = append(s.outputs, zapcore.AddSync(rotating(cfg, cfg.File.Filename)))
		s.errors = zapcore.AddSync(rotating(cfg, "error.log"))
	}
	return s, nil
}

// rotating 创建按大小轮转的日志文件
func rotating(cfg *config.LogConfig, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.File.Path, name),
		MaxSize:    cfg.File.MaxSize,    // MB
		MaxAge:     cfg.File.MaxAge,     // days
		MaxBackups: cfg.File.MaxBackups, // 保留文件数
		Compress:   cfg.File.Compress,
	}
}

// parseLevel 解析日志级别，无法识别时为 info
func parseLevel(levelStr string) zapcore.Level {
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// GetLogger 获取日志器，未初始化时返回空日志器
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if base == nil {
		return zap.NewNop()
	}
	return base
}

// GetModuleLogger 获取模块日志器
func GetModuleLogger(module string) *zap.Logger {
	mu.RLock()
	l, ok := moduleLoggers[module]
	mu.RUnlock()
	if ok {
		return l
	}
	return GetLogger().Named(module)
}

// Sync 同步日志缓冲区
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if base == nil {
		return nil
	}
	return base.Sync()
}

// SetLevel 动态设置全局日志级别
func SetLevel(levelStr string) {
	atomicLevel.SetLevel(parseLevel(levelStr))
}

// caller 包级便捷方法跳过自身一层调用栈
func caller() *zap.Logger {
	return GetLogger().WithOptions(zap.AddCallerSkip(1))
}

// Debug 输出调试日志
func Debug(msg string, fields ...zap.Field) { caller().Debug(msg, fields...) }

// Info 输出信息日志
func Info(msg string, fields ...zap.Field) { caller().Info(msg, fields...) }

// Warn 输出警告日志
func Warn(msg string, fields ...zap.Field) { caller().Warn(msg, fields...) }

// Error 输出错误日志
func Error(msg string, fields ...zap.Field) { caller().Error(msg, fields...) }

// Fatal 输出致命错误日志并退出程序
func Fatal(msg string, fields ...zap.Field) { caller().Fatal(msg, fields...) }

// RequestEntry 一次HTTP请求的日志内容
type RequestEntry struct {
	Method    string
	Path      string
	Status    int
	Latency   time.Duration
	ClientIP  string
	RequestID string
	Errors    string
}

// LogRequest 记录请求日志，5xx 为错误，4xx 为警告
func LogRequest(log *zap.Logger, e RequestEntry) {
	fields := []zap.Field{
		zap.String("method", e.Method),
		zap.String("path", e.Path),
		zap.Int("status", e.Status),
		zap.Duration("latency", e.Latency),
		zap.String("client_ip", e.ClientIP),
		zap.String("request_id", e.RequestID),
	}
	if e.Errors != "" {
		fields = append(fields, zap.String("errors", e.Errors))
	}

	switch {
	case e.Status >= http.StatusInternalServerError:
		log.Error("请求处理失败", fields...)
	case e.Status >= http.StatusBadRequest:
		log.Warn("请求被拒绝", fields...)
	default:
		log.Info("请求完成", fields...)
	}
}

// LogPanic 记录被恢复的panic
func LogPanic(log *zap.Logger, recovered interface{}, path string, stack []byte) {
	log.Error("请求处理panic",
		zap.Any("panic", recovered),
		zap.String("path", path),
		zap.ByteString("stack", stack),
	)
}

// LogGameEvent 记录房间事件
func LogGameEvent(event string, roomCode string, data map[string]interface{}) {
	GetModuleLogger("game").Info("game_event",
		zap.String("event", event),
		zap.String("room_code", roomCode),
		zap.Any("data", data),
	)
}

// LogWebSocketMessage 记录WebSocket消息，direction 为 send 或 receive
func LogWebSocketMessage(direction string, messageType string, payload interface{}) {
	GetModuleLogger("websocket").Debug("ws_message",
		zap.String("direction", direction),
		zap.String("type", messageType),
		zap.Any("payload", payload),
	)
}

// LogDatabaseOperation 记录一次数据库写入或查询
func LogDatabaseOperation(log *zap.Logger, operation string, table string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("table", table),
		zap.Duration("duration", duration),
	}
	if err != nil {
		log.Error("数据库操作失败", append(fields, zap.Error(err))...)
		return
	}
	log.Debug("数据库操作", fields...)
}
