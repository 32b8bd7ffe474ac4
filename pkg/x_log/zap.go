// file: nats-micro/pkg/x_log/zap.go
package x_log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type zapLogger struct {
	sugar *zap.SugaredLogger
}

var _ Logger = (*zapLogger)(nil)

// New builds a Logger from cfg. Console output goes to stderr; when
// cfg.File is set a rotated file core is added alongside it.
func New(cfg Config) Logger {
	level := toZapLevel(cfg.Level)

	var cores []zapcore.Core

	consoleEncoder := newConsoleEncoder(cfg.Format)
	cores = append(cores, zapcore.NewCore(
		consoleEncoder,
		zapcore.Lock(os.Stderr),
		level,
	))

	if cfg.File != "" {
		rotated := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.RotateMaxMB,
			MaxAge:     cfg.RotateMaxAge,
			MaxBackups: cfg.RotateBackups,
			Compress:   cfg.RotateCompress,
		})
		fileEncoder := zapcore.NewJSONEncoder(jsonEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEncoder, rotated, level))
	}

	zl := zap.New(zapcore.NewTee(cores...))
	if cfg.Name != "" {
		zl = zl.Named(cfg.Name)
	}
	return &zapLogger{sugar: zl.Sugar()}
}

func (l *zapLogger) Debugw(msg string, kv ...any) { l.sugar.Debugw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...any)  { l.sugar.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...any)  { l.sugar.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...any) { l.sugar.Errorw(msg, kv...) }

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{sugar: l.sugar.Named(name)}
}

func toZapLevel(l Level) zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newConsoleEncoder(format Format) zapcore.Encoder {
	if format == FormatJSON {
		return zapcore.NewJSONEncoder(jsonEncoderConfig())
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.ConsoleSeparator = " "
	cfg.EncodeTime = styledTimeEncoder
	cfg.EncodeLevel = styledLevelEncoder
	cfg.EncodeName = styledNameEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	return cfg
}
