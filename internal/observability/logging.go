package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/issuelog/internal/config"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// NewLogger creates the process logger. Every entry carries the service name, version and
// environment, so entries from one-shot replay runs and the server can be told apart.
func NewLogger(cfg config.LoggerConfig, app config.AppConfig) (*zap.Logger, error) {
	zapCfg, err := loggerConfig(cfg, app)
	if err != nil {
		return nil, err
	}
	return zapCfg.Build()
}

func loggerConfig(cfg config.LoggerConfig, app config.AppConfig) (zap.Config, error) {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encodeLevel := zapcore.LowercaseLevelEncoder
	switch cfg.Format {
	case "", FormatJSON:
		cfg.Format = FormatJSON
	case FormatConsole:
		encodeLevel = zapcore.CapitalLevelEncoder
	default:
		return zap.Config{}, fmt.Errorf("unsupported LOG_FORMAT %q: want %s or %s", cfg.Format, FormatJSON, FormatConsole)
	}

	fields := map[string]interface{}{}
	for key, val := range map[string]string{"service": app.Name, "version": app.Version, "env": app.Env} {
		if val != "" {
			fields[key] = val
		}
	}

	return zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: level == zapcore.DebugLevel,
		Encoding:    cfg.Format,
		// panics and halted issues log their own context; a stack per error is noise
		DisableStacktrace: true,
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			LevelKey:       "level",
			TimeKey:        "ts",
			NameKey:        "logger",
			CallerKey:      "caller",
			EncodeLevel:    encodeLevel,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields:    fields,
	}, nil
}
