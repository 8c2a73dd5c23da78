// Package logging provides shared logging configuration. Every role
// applies its own configuration independently after it starts, since
// "logging configuration is applied per process after fork;
// configurations are never shared live across processes."
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const defaultLogLevel = slog.LevelWarn

// Config is the opaque "logging configuration" each DaemonSpec and
// WorkerSpec carries. Loading it from a file or config format is an
// external collaborator's job; this package only applies an already
// resolved level.
type Config struct {
	// Level is a slog level name ("debug", "info", "warn", "error").
	// Empty falls back to the LOG_LEVEL environment variable, then to
	// defaultLogLevel.
	Level string
}

// Init sets the log level based on the "LOG_LEVEL" environment
// variable. Used by the host and the CLI entry point, which run
// before any DaemonSpec's logging configuration is in scope.
func Init() {
	Apply(Config{}, "")
}

// Apply builds an slog.TextHandler for cfg and installs it as the
// default logger, tagging every record with the given role (skipped
// when role is empty). Called once by each process after it assumes
// its role.
func Apply(cfg Config, role string) {
	level := resolveLevel(cfg.Level)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	if role != "" {
		logger = logger.With("role", role)
	}
	slog.SetDefault(logger)
}

// LoadConfig reads path and returns its trimmed contents as a log
// level name. It is a deliberately minimal stand-in for a structured
// config-file loader (out of scope here, see spec's Non-goals):
// the host's --log flag names a file holding nothing but a level
// name ("debug", "info", ...), one line, no further structure. An
// empty path is not an error; it simply yields an empty level, which
// Apply/Init then resolve through LOG_LEVEL and the default.
func LoadConfig(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("logging: read log config %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func resolveLevel(configured string) slog.Level {
	level := defaultLogLevel

	text := configured
	if text == "" {
		text, _ = os.LookupEnv("LOG_LEVEL")
	}
	if text == "" {
		return level
	}
	if err := level.UnmarshalText([]byte(text)); err != nil {
		return slog.LevelDebug
	}
	return level
}
