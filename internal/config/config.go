package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	apperrors "github.com/wfunc/imposter-game/internal/errors"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Game      GameConfig      `mapstructure:"game"`
	Log       LogConfig       `mapstructure:"log"`
	System    SystemConfig    `mapstructure:"system"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path              string        `mapstructure:"path"`
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	SendBufferSize    int           `mapstructure:"send_buffer_size"`
	EnableCompression bool          `mapstructure:"enable_compression"`
}

// GameConfig 游戏配置
type GameConfig struct {
	ImposterCount   int           `mapstructure:"imposter_count"`
	MessageTime     time.Duration `mapstructure:"message_time"`
	VoteTime        time.Duration `mapstructure:"vote_time"`
	MaxRounds       int           `mapstructure:"max_rounds"`
	MinPlayers      int           `mapstructure:"min_players"`
	MaxPlayers      int           `mapstructure:"max_players"`
	RoomCodeLength  int           `mapstructure:"room_code_length"`
	IdleRoomTimeout time.Duration `mapstructure:"idle_room_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	WordsFile       string        `mapstructure:"words_file"`
	Phases          PhaseConfig   `mapstructure:"phases"`
}

// PhaseConfig 固定阶段时长配置
type PhaseConfig struct {
	WordAssignment time.Duration `mapstructure:"word_assignment"`
	PreVoting      time.Duration `mapstructure:"pre_voting"`
	VoteReveal     time.Duration `mapstructure:"vote_reveal"`
	Results        time.Duration `mapstructure:"results"`
	RoundEnd       time.Duration `mapstructure:"round_end"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Timezone string `mapstructure:"timezone"`
	MaxProcs int    `mapstructure:"max_procs"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v, cfg, err = load(configPath)
	})
	return err
}

// Load 读取配置但不修改全局实例（测试和工具使用）
func Load(configPath string) (*Config, error) {
	_, c, err := load(configPath)
	return c, err
}

// load 读取配置文件、环境变量和默认值
func load(configPath string) (*viper.Viper, *Config, error) {
	vp := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	// 设置环境变量前缀
	vp.SetEnvPrefix("IMPOSTER")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 如果配置文件不存在，使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, apperrors.Wrapf(err, apperrors.ErrConfigLoad, "读取配置文件失败")
		}
	}

	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrConfigParse)
	}
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	return vp, c, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/imposter-game.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// WebSocket默认配置
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.ping_interval", "54s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.send_buffer_size", 256)
	v.SetDefault("websocket.enable_compression", false)

	// 游戏默认配置
	v.SetDefault("game.imposter_count", 1)
	v.SetDefault("game.message_time", "40s")
	v.SetDefault("game.vote_time", "30s")
	v.SetDefault("game.max_rounds", 5)
	v.SetDefault("game.min_players", 3)
	v.SetDefault("game.max_players", 12)
	v.SetDefault("game.room_code_length", 4)
	v.SetDefault("game.idle_room_timeout", "30m")
	v.SetDefault("game.cleanup_interval", "1m")
	v.SetDefault("game.words_file", "")
	v.SetDefault("game.phases.word_assignment", "5s")
	v.SetDefault("game.phases.pre_voting", "10s")
	v.SetDefault("game.phases.vote_reveal", "4s")
	v.SetDefault("game.phases.results", "5s")
	v.SetDefault("game.phases.round_end", "3s")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "imposter-game.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)
}

// Validate 校验配置
func (c *Config) Validate() error {
	g := c.Game
	if g.ImposterCount < 1 {
		return apperrors.Newf(apperrors.ErrConfigValidate, "game.imposter_count 必须大于0: %d", g.ImposterCount)
	}
	if g.MaxRounds < 1 {
		return apperrors.Newf(apperrors.ErrConfigValidate, "game.max_rounds 必须大于0: %d", g.MaxRounds)
	}
	if g.MinPlayers < 3 {
		return apperrors.Newf(apperrors.ErrConfigValidate, "game.min_players 不能小于3: %d", g.MinPlayers)
	}
	if g.MaxPlayers < g.MinPlayers {
		return apperrors.Newf(apperrors.ErrConfigValidate, "game.max_players(%d) 不能小于 game.min_players(%d)", g.MaxPlayers, g.MinPlayers)
	}
	durations := map[string]time.Duration{
		"game.message_time":           g.MessageTime,
		"game.vote_time":              g.VoteTime,
		"game.phases.word_assignment": g.Phases.WordAssignment,
		"game.phases.pre_voting":      g.Phases.PreVoting,
		"game.phases.vote_reveal":     g.Phases.VoteReveal,
		"game.phases.results":         g.Phases.Results,
		"game.phases.round_end":       g.Phases.RoundEnd,
	}
	for key, d := range durations {
		if d <= 0 {
			return apperrors.Newf(apperrors.ErrConfigValidate, "%s 必须为正数: %s", key, d)
		}
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载校验失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}

		fmt.Println("配置已重新加载")
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}
