// Package logging adapts zap to the accounts Logger interface.
package logging

import (
	"time"

	"github.com/gofiber/fiber/v2"
	accounts "github.com/goliatone/go-accounts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZap builds a production zap logger at level. Development switches to
// the console encoder.
func NewZap(level string, development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// ZapLogger implements accounts.Logger on a sugared zap logger
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ accounts.Logger = (*ZapLogger)(nil)

// NewZapLogger wraps logger, a nil logger discards everything.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{sugar: logger.Sugar()}
}

// Named returns a child logger.
func (l *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{sugar: l.sugar.Named(name)}
}

func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

// Printf returns a view of l that takes format strings, as go-router logs.
func (l *ZapLogger) Printf() *PrintfLogger {
	return &PrintfLogger{sugar: l.sugar}
}

// PrintfLogger logs printf style messages.
type PrintfLogger struct {
	sugar *zap.SugaredLogger
}

func (l *PrintfLogger) Debug(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *PrintfLogger) Info(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *PrintfLogger) Warn(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *PrintfLogger) Error(format string, args ...any) { l.sugar.Errorf(format, args...) }

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

// RequestLogger logs every request: Warn for 4xx, Error for 5xx, Info otherwise.
func RequestLogger(logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = accounts.StatusCode(err)
			}
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}

		switch {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
		return err
	}
}
