package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options mirrors the log section of the config file.
type Options struct {
	Level string
	File  string
	JSON  bool
}

// New builds the process logger. Console output goes to stderr; when File is
// set every entry is also appended there as JSON.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if strings.TrimSpace(opts.Level) != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEnc zapcore.Encoder
	if opts.JSON {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	} else {
		devCfg := encCfg
		devCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(devCfg)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level),
	}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
