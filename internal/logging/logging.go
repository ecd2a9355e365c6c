// Package logging builds the process-wide zap logger.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"ragflow/internal/config"
)

// New returns a logger writing to stderr and, when cfg.File is set, to a
// rotating JSON file.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	return build(cfg, zapcore.Lock(os.Stderr))
}

// NewFileOnly returns a logger that writes only to cfg.File, for full-screen
// terminal sessions where stderr output would corrupt the view. Without a
// file it returns a no-op logger.
func NewFileOnly(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.File == "" {
		if _, err := zapcore.ParseLevel(cfg.Level); err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
		return zap.NewNop(), nil
	}
	return build(cfg, nil)
}

// build tees a console core writing to console, skipped when console is nil,
// and the optional file core.
func build(cfg config.LoggingConfig, console zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEncoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		consoleConfig := zap.NewDevelopmentEncoderConfig()
		consoleConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(consoleConfig)
	case "json":
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("logging.format: unknown format %q", cfg.Format)
	}

	var cores []zapcore.Core
	if console != nil {
		cores = append(cores, zapcore.NewCore(consoleEncoder, console, level))
	}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
