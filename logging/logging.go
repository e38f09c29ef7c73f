// Package logging provides the leveled logger shared by the feed session,
// the alert evaluator and the notification sinks.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logging surface the pipeline depends on. Any leveled logger
// can be plugged in; New returns the zerolog-backed default.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

type zeroLog struct {
	logger zerolog.Logger
}

var _ Logger = (*zeroLog)(nil)

// New returns a Logger writing to w. format is "json" or "text"; level is one
// of debug, info, warn, error and falls back to info when unparsable.
func New(w io.Writer, level, format string) Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if strings.ToLower(format) == "text" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return &zeroLog{logger: zerolog.New(w).With().Timestamp().Logger().Level(lvl)}
}

func (z *zeroLog) Debugf(format string, v ...interface{}) {
	z.logger.Debug().Msgf(format, v...)
}

func (z *zeroLog) Infof(format string, v ...interface{}) {
	z.logger.Info().Msgf(format, v...)
}

func (z *zeroLog) Warnf(format string, v ...interface{}) {
	z.logger.Warn().Msgf(format, v...)
}

func (z *zeroLog) Errorf(format string, v ...interface{}) {
	z.logger.Error().Msgf(format, v...)
}

type nopLog struct{}

func (nopLog) Debugf(string, ...interface{}) {}
func (nopLog) Infof(string, ...interface{})  {}
func (nopLog) Warnf(string, ...interface{})  {}
func (nopLog) Errorf(string, ...interface{}) {}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLog{}
}
