package logger

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	LogFile    string // 日志文件路径，为空时只输出到控制台
	Level      string // debug/info/warn/error
	MaxSize    int    // 单个文件最大尺寸(MB)
	MaxBackups int    // 保留旧文件个数
	MaxAge     int    // 保留天数
	Compress   bool   // 是否压缩旧文件
	Console    bool   // 是否同时输出到控制台
}

var (
	mu   sync.RWMutex
	base = zap.NewNop()
)

// InitLogger 根据配置初始化全局日志器
func InitLogger(cfg Config) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := parseLevel(cfg.Level)
	var cores []zapcore.Core

	if cfg.LogFile != "" {
		writer := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(writer), level))
	}

	if cfg.Console || cfg.LogFile == "" {
		consoleCfg := encoderCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stdout), level))
	}

	SetLogger(zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)))
}

// SetLogger 替换全局日志器（测试中常用 zaptest/observer）
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
}

// L 返回当前全局日志器
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// withTrace 从上下文中提取 trace_id/span_id
func withTrace(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return fields
	}
	return append(fields,
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	L().Debug(msg, withTrace(ctx, fields)...)
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	L().Info(msg, withTrace(ctx, fields)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	L().Warn(msg, withTrace(ctx, fields)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	L().Error(msg, withTrace(ctx, fields)...)
}

func Debugf(ctx context.Context, format string, args ...any) {
	L().Debug(fmt.Sprintf(format, args...), withTrace(ctx, nil)...)
}

func Infof(ctx context.Context, format string, args ...any) {
	L().Info(fmt.Sprintf(format, args...), withTrace(ctx, nil)...)
}

func Warnf(ctx context.Context, format string, args ...any) {
	L().Warn(fmt.Sprintf(format, args...), withTrace(ctx, nil)...)
}

func Errorf(ctx context.Context, format string, args ...any) {
	L().Error(fmt.Sprintf(format, args...), withTrace(ctx, nil)...)
}

// Fatalf 记录日志后退出进程
func Fatalf(ctx context.Context, format string, args ...any) {
	L().Fatal(fmt.Sprintf(format, args...), withTrace(ctx, nil)...)
}
