// Package logger builds the process-wide zap logger from config.LogConfig.
// File output is rotated with lumberjack.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ecoback/reward-engine/config"
)

// New creates a JSON logger writing to the configured output.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	sink, err := output(cfg)
	if err != nil {
		return nil, err
	}

	encoder := zapcore.NewJSONEncoder(encoderConfig())
	c := zapcore.NewCore(encoder, zapcore.AddSync(sink), zap.NewAtomicLevelAt(level))
	return zap.New(c, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func output(cfg config.LogConfig) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if cfg.File == "" {
			return nil, fmt.Errorf("log.file is required when log.output is file")
		}
		return &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   cfg.Compress,
		}, nil
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}
}

func encoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	ec.CallerKey = "caller"
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	ec.LevelKey = "level"
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	ec.MessageKey = "message"
	return ec
}

// ParseLevel accepts debug, info, warn/warning and error.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
