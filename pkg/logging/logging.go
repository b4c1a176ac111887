// Package logging builds the service logger. Log calls go through ectologger
// so call sites stay uniform; the sink hands structured messages to zap for
// formatting, leveling, and output.
package logging

import (
	"encoding/json"
	"strings"

	"github.com/Gobusters/ectologger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger construction parameters
type Config struct {
	Level  string
	Pretty bool
}

// New creates the service logger backed by zap. The returned flush func should
// be deferred in main.
func New(cfg Config) (ectologger.Logger, func(), error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Pretty {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zapCfg.DisableCaller = true
	zapCfg.DisableStacktrace = true

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, err
	}

	logger := ectologger.NewEctoLogger(sink(zapLogger))
	flush := func() { _ = zapLogger.Sync() }
	return logger, flush, nil
}

// sink flattens an ectologger message into zap fields. The message is decoded
// through JSON so the sink does not depend on the message struct layout.
func sink(zapLogger *zap.Logger) func(ectologger.EctoLogMessage) {
	return func(msg ectologger.EctoLogMessage) {
		raw, err := json.Marshal(msg)
		if err != nil {
			zapLogger.Error("unloggable message", zap.Error(err))
			return
		}

		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			zapLogger.Info(string(raw))
			return
		}

		level, _ := payload["level"].(string)
		text, _ := payload["message"].(string)
		if text == "" {
			text, _ = payload["msg"].(string)
		}
		delete(payload, "level")
		delete(payload, "message")
		delete(payload, "msg")

		fields := make([]zap.Field, 0, len(payload))
		for key, value := range payload {
			fields = append(fields, zap.Any(key, value))
		}

		switch parseLevel(level) {
		case zapcore.DebugLevel:
			zapLogger.Debug(text, fields...)
		case zapcore.WarnLevel:
			zapLogger.Warn(text, fields...)
		case zapcore.ErrorLevel:
			zapLogger.Error(text, fields...)
		case zapcore.FatalLevel:
			zapLogger.Fatal(text, fields...)
		default:
			zapLogger.Info(text, fields...)
		}
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
