package gologger

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapProvider hands out named glog loggers backed by one zap core.
type ZapProvider struct {
	base *zap.Logger
}

// NewZapProvider builds a production JSON logger at level (debug, info, warn
// or error; anything else means info).
func NewZapProvider(level string) (*ZapProvider, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	base, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("gologger: build zap logger: %w", err)
	}
	return &ZapProvider{base: base}, nil
}

func NewZapProviderFromLogger(base *zap.Logger) *ZapProvider {
	if base == nil {
		base = zap.NewNop()
	}
	return &ZapProvider{base: base}
}

func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (p *ZapProvider) GetLogger(name string) glog.Logger {
	if p == nil || p.base == nil {
		return glog.Nop()
	}
	base := p.base
	if name = strings.TrimSpace(name); name != "" {
		base = base.Named(name)
	}
	return &ZapLogger{log: base.Sugar()}
}

// Sync flushes buffered entries. Call it before the process exits.
func (p *ZapProvider) Sync() error {
	if p == nil || p.base == nil {
		return nil
	}
	return p.base.Sync()
}

// ZapLogger adapts a sugared zap logger to glog. Variadic args are
// key/value pairs.
type ZapLogger struct {
	log *zap.SugaredLogger
}

func (l *ZapLogger) Trace(msg string, args ...any) { l.log.Debugw(msg, args...) }
func (l *ZapLogger) Debug(msg string, args ...any) { l.log.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...any)  { l.log.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...any)  { l.log.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...any) { l.log.Errorw(msg, args...) }

// Fatal logs at error level with fatal=true; library code never exits the
// process.
func (l *ZapLogger) Fatal(msg string, args ...any) {
	l.log.Errorw(msg, append(args, "fatal", true)...)
}

func (l *ZapLogger) WithContext(context.Context) glog.Logger {
	return l
}

func (l *ZapLogger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	return &ZapLogger{log: l.log.With(args...)}
}

var (
	_ glog.Logger         = (*ZapLogger)(nil)
	_ glog.FieldsLogger   = (*ZapLogger)(nil)
	_ glog.LoggerProvider = (*ZapProvider)(nil)
)
