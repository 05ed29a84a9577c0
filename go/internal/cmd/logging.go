package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// setupLogging enables debug output only in development or when asked for
// explicitly.
func setupLogging(c *Config) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	level := zerolog.InfoLevel
	if c.Env == "development" || strings.EqualFold(c.LogLevel, "debug") {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}
