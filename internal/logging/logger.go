package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger    *slog.Logger
	loggerMu  sync.RWMutex
	debugMode bool
)

// 当前的输出和格式，改级别时保留
var logWriter io.Writer = os.Stderr
var logFormat = "text"

func init() {
	// 默认使用 Info 级别的文本处理器
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Setup 初始化日志
// level: debug/info/warn/error, format: text/json
func Setup(level, format string) {
	SetOutput(os.Stderr, ParseLevel(level), format)
}

// SetOutput 指定输出和级别
func SetOutput(w io.Writer, level slog.Level, format string) {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = slog.New(handler)
	debugMode = level <= slog.LevelDebug
	logWriter = w
	logFormat = strings.ToLower(format)
}

// setLevel 只改级别，保留当前的输出和格式
func setLevel(level slog.Level) {
	loggerMu.RLock()
	w, f := logWriter, logFormat
	loggerMu.RUnlock()
	SetOutput(w, level, f)
}

// SetVerbosity 按 -v 次数设置级别: 0=error 1=warn 2=info 3+=debug
func SetVerbosity(verbose int) {
	level := slog.LevelError
	switch {
	case verbose >= 3:
		level = slog.LevelDebug
	case verbose == 2:
		level = slog.LevelInfo
	case verbose == 1:
		level = slog.LevelWarn
	}
	setLevel(level)
}

// SetDebugMode 设置调试模式
func SetDebugMode(enabled bool) {
	level := slog.LevelInfo
	if enabled {
		level = slog.LevelDebug
	}
	setLevel(level)
}

// IsDebugMode 是否调试模式
func IsDebugMode() bool {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return debugMode
}

// ParseLevel 解析级别字符串，未知值为 info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger 返回当前 logger
func Logger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Or 返回 l，l 为 nil 时返回当前 logger
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return Logger()
}

// Discard 丢弃所有输出，测试用
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// LogDebug 调试日志
func LogDebug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// LogInfo 信息日志
func LogInfo(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// LogWarn 警告日志
func LogWarn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// LogError 错误日志
func LogError(msg string, args ...any) {
	Logger().Error(msg, args...)
}
