// Package logger is a thin zerolog wrapper for services that log with
// key/value pairs instead of building events.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/salon-api/pkg/requestmeta"
)

type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

type Config struct {
	Level      Level
	TimeFormat string
	Output     io.Writer
	// JSON disables the console writer
	JSON bool
}

type Logger struct {
	ZL zerolog.Logger
}

func NewLogger(cfg *Config) *Logger {
	c := Config{Level: InfoLevel, TimeFormat: time.RFC3339}
	if cfg != nil {
		c = *cfg
	}
	out := c.Output
	if out == nil {
		out = os.Stdout
	}
	if !c.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: c.TimeFormat}
	}

	zl := zerolog.New(out).Level(c.Level).With().Timestamp().Caller().Logger()
	return &Logger{ZL: zl}
}

// Nop discards everything
func Nop() *Logger {
	return &Logger{ZL: zerolog.Nop()}
}

// ParseLevel maps a config string to a level; unknown or empty means info
func ParseLevel(s string) Level {
	if s == "" {
		return InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return InfoLevel
	}
	return lvl
}

func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{ZL: l.ZL.With().Str("component", name).Logger()}
}

// Ctx tags entries with the request id and acting user carried by ctx
func (l *Logger) Ctx(ctx context.Context) *Logger {
	meta := requestmeta.FromContext(ctx)
	if meta.RequestID == "" && meta.UserID == nil {
		return l
	}
	zc := l.ZL.With()
	if meta.RequestID != "" {
		zc = zc.Str("request_id", meta.RequestID)
	}
	if meta.UserID != nil {
		zc = zc.Str("user_id", meta.UserID.String())
	}
	return &Logger{ZL: zc.Logger()}
}

// kv is a flat list of alternating keys and values
func (l *Logger) Debug(msg string, kv ...interface{}) { l.ZL.Debug().Fields(kv).Msg(msg) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.ZL.Info().Fields(kv).Msg(msg) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.ZL.Warn().Fields(kv).Msg(msg) }

func (l *Logger) Error(err error, msg string, kv ...interface{}) {
	l.ZL.Error().Err(err).Fields(kv).Msg(msg)
}
