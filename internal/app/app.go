// Package app wires the planning pipeline together: configuration loading
// and validation, frequency partitioning, stage graph building, descriptor
// and master script emission, and optional immediate submission.
package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/vk/bandplan/internal/ctxlog"
)

// Config holds everything a run invocation needs.
type Config struct {
	// ConfigPath is the user's run configuration file.
	ConfigPath string
	// Submit executes the master script immediately after planning.
	Submit bool
	// JustRun leaves existing submission descriptors untouched.
	JustRun bool
	// Quiet suppresses submission chatter; only the final chain job
	// identifier is printed, for capture by an outer master script.
	Quiet bool
	// Verbose makes the master script echo each submission command.
	Verbose bool
	// Dependency is a scheduler dependency expression gating the run's
	// first submission; overrides the config's slurm.dependencies key.
	Dependency string

	LogFormat string
	LogLevel  string
}

// NewConfig validates an app configuration.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("a config file path is required")
	}
	return &cfg, nil
}

// App encapsulates the planner's dependencies and lifecycle.
type App struct {
	outW   io.Writer
	logW   io.Writer
	logger *slog.Logger
}

// NewApp constructs the application with its own isolated logger. Log
// output goes to logW (stderr in production) so that stdout stays reserved
// for the captured identifier protocol between nested runs.
func NewApp(outW, logW io.Writer, cfg *Config) *App {
	level := parseLevel(cfg.LogLevel)
	if cfg.Quiet {
		level = slog.LevelError
	}
	return &App{
		outW:   outW,
		logW:   logW,
		logger: newLogger(level, cfg.LogFormat, logW),
	}
}

// context returns the background context carrying the app's logger.
func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// fileExists reports whether path names an existing file or directory.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
