package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	mainLogName  = "discover_crawl.log"
	errorLogName = "discover_crawl_error.log"
)

// 控制台输出格式
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Logger 全局日志器
var Logger zerolog.Logger

// LogConfig 日志配置
type LogConfig struct {
	Level  string // trace, debug, info, warn, error
	LogDir string
	// Format 控制台格式: console 为彩色文本, json 为逐行JSON (服务模式下便于采集)
	Format string

	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool

	// Console 控制台输出目标,为nil时使用标准错误,避免与 CSV 标准输出混在一起
	Console io.Writer
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		Format:     FormatConsole,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

func (c LogConfig) rotating(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(c.LogDir, name),
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

func (c LogConfig) consoleWriter() (io.Writer, error) {
	out := c.Console
	if out == nil {
		out = os.Stderr
	}
	switch c.Format {
	case "", FormatConsole:
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}, nil
	case FormatJSON:
		return out, nil
	default:
		return nil, fmt.Errorf("未知的日志格式: %s", c.Format)
	}
}

// InitLogger 初始化日志系统
// 输出到控制台、主日志文件(全部级别)和错误日志文件(error及以上),两个文件均按大小轮转
func InitLogger(config LogConfig) error {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console, err := config.consoleWriter()
	if err != nil {
		return err
	}

	// MultiLevelWriter 对实现了 LevelWriter 的输出调用 WriteLevel
	writers := zerolog.MultiLevelWriter(
		console,
		config.rotating(mainLogName),
		&LevelGate{Writer: config.rotating(errorLogName), MinLevel: zerolog.ErrorLevel},
	)

	Logger = zerolog.New(writers).With().Timestamp().Caller().Logger()
	log.Logger = Logger

	Logger.Debug().
		Str("level", level.String()).
		Str("log_dir", config.LogDir).
		Str("format", config.Format).
		Msg("日志系统初始化完成")
	return nil
}

// LevelGate 只放行不低于 MinLevel 的日志
type LevelGate struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

// Write 无级别信息时直接写入
func (g *LevelGate) Write(p []byte) (int, error) {
	return g.Writer.Write(p)
}

// WriteLevel 实现 zerolog.LevelWriter
func (g *LevelGate) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < g.MinLevel {
		return len(p), nil
	}
	return g.Writer.Write(p)
}

// RunLogger 返回带 run_id 和 query 字段的子日志器
func RunLogger(runID, query string) zerolog.Logger {
	return Logger.With().Str("run_id", runID).Str("query", query).Logger()
}

func Info(msg string) { Logger.Info().Msg(msg) }

func Infof(format string, args ...interface{}) { Logger.Info().Msgf(format, args...) }

func Warn(msg string) { Logger.Warn().Msg(msg) }

func Warnf(format string, args ...interface{}) { Logger.Warn().Msgf(format, args...) }

func Debug(msg string) { Logger.Debug().Msg(msg) }

func Debugf(format string, args ...interface{}) { Logger.Debug().Msgf(format, args...) }

func Errorf(format string, args ...interface{}) { Logger.Error().Msgf(format, args...) }
