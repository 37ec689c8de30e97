// Package logging provides structured logging for the core using zerolog.
//
// It mirrors the teacher's logger package: a package-level configurable
// global logger plus component-scoped sub-loggers, JSON output in
// production and a pretty console writer in development.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global logger. Use the component helpers below for
// subsystem-tagged logging.
var Log zerolog.Logger

// Init configures the global logger. Call once at process start, before the
// Lifespan Coordinator runs.
func Init(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "streamgate").Logger()
	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

// Bus returns the duplex-event-bus component logger.
func Bus() *zerolog.Logger {
	l := Log.With().Str("component", "bus").Logger()
	return &l
}

// Lifespan returns the lifespan-coordinator component logger.
func Lifespan() *zerolog.Logger {
	l := Log.With().Str("component", "lifespan").Logger()
	return &l
}

// HTTP returns the HTTP-coordinator component logger.
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}

// WS returns the WebSocket-coordinator component logger.
func WS() *zerolog.Logger {
	l := Log.With().Str("component", "websocket").Logger()
	return &l
}

// Dispatcher returns the dispatcher component logger.
func Dispatcher() *zerolog.Logger {
	l := Log.With().Str("component", "dispatcher").Logger()
	return &l
}
