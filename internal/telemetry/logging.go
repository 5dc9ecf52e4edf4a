package telemetry

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingLoggerConfig tunes the on-disk rotation sink a caller can plug
// into the engine's structured logging.
type RotatingLoggerConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Level      zapcore.Level
	Compress   bool
}

// DefaultRotatingLoggerConfig returns sane rotation defaults: 100MB
// files, 28-day retention, 5 backups, info level.
func DefaultRotatingLoggerConfig(filename string) RotatingLoggerConfig {
	return RotatingLoggerConfig{
		Filename:   filename,
		MaxSizeMB:  100,
		MaxAgeDays: 28,
		MaxBackups: 5,
		Level:      zapcore.InfoLevel,
		Compress:   true,
	}
}

// NewRotatingLogger builds a zap.Logger that writes JSON-encoded entries
// to a lumberjack-rotated file. Callers that want diagnostic logs
// durable across restarts, rather than the zap.NewNop() default, inject
// the result as engine.Config.Logger.
func NewRotatingLogger(cfg RotatingLoggerConfig) (*zap.Logger, error) {
	if dir := filepath.Dir(cfg.Filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	sink := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(sink), cfg.Level)
	return zap.New(core), nil
}
