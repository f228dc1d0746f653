package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 日志配置
type Config struct {
	Level       string // debug, info, warn, error
	Development bool
	Encoding    string // json, console
	OutputPaths []string
}

var (
	// 未初始化时使用空日志，测试中无需显式Init
	sugar = zap.NewNop().Sugar()
	mu    sync.RWMutex
)

// DefaultConfig 默认日志配置
func DefaultConfig() Config {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	return Config{
		Level:       level,
		Development: false,
		Encoding:    "console",
		OutputPaths: []string{"stdout"},
	}
}

// Init 初始化全局日志
func Init(cfg Config) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "console"
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      cfg.Development,
		Encoding:         cfg.Encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewNop()
	}

	mu.Lock()
	sugar = l.Sugar()
	mu.Unlock()
}

// Use 替换全局日志，返回恢复函数
func Use(l *zap.Logger) func() {
	mu.Lock()
	prev := sugar
	sugar = l.Sugar()
	mu.Unlock()
	return func() {
		mu.Lock()
		sugar = prev
		mu.Unlock()
	}
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debug 调试日志
func Debug(msg string, keysAndValues ...interface{}) {
	get().Debugw(msg, keysAndValues...)
}

// Info 信息日志
func Info(msg string, keysAndValues ...interface{}) {
	get().Infow(msg, normalize(keysAndValues)...)
}

// Warn 警告日志
func Warn(msg string, keysAndValues ...interface{}) {
	get().Warnw(msg, normalize(keysAndValues)...)
}

// Error 错误日志
func Error(msg string, err error, keysAndValues ...interface{}) {
	kv := make([]interface{}, 0, len(keysAndValues)+2)
	if err != nil {
		kv = append(kv, "error", err.Error())
	}
	kv = append(kv, keysAndValues...)
	get().Errorw(msg, normalize(kv)...)
}

// Sync 刷新缓冲
func Sync() {
	_ = get().Sync()
}

// normalize 补齐奇数个参数，避免zap输出DPANIC
func normalize(kv []interface{}) []interface{} {
	if len(kv)%2 == 1 {
		return append(kv, "")
	}
	return kv
}
