package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/misty-step/magehand/internal/config"
	"github.com/misty-step/magehand/internal/judge"
	"github.com/misty-step/magehand/internal/runner"
	"github.com/misty-step/magehand/internal/tools"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		logFile    string
		multiplex  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the magehand tools over stdio",
		Long: `Serve starts the MCP server on stdin/stdout. Tool calls are logged
as JSON lines to a state file, and remote tools are screened by the
configured security judge before execution.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return &exitError{Code: 2, Err: err}
			}
			if cmd.Flags().Changed("multiplex") {
				cfg.Multiplex = multiplex
			}
			if logFile != "" {
				cfg.LogFile = logFile
			}
			if cfg.LogFile == "" {
				cfg.LogFile, err = config.DefaultLogFile()
				if err != nil {
					return &exitError{Code: 2, Err: err}
				}
			}

			logger, closeLog, err := newLogger(cfg.LogFile)
			if err != nil {
				return &exitError{Code: 2, Err: err}
			}
			defer closeLog()

			base, err := cfg.JudgeBase()
			if err != nil {
				return &exitError{Code: 2, Err: err}
			}
			judgeCfg, err := judge.ConfigFromEnv(base)
			if err != nil {
				return &exitError{Code: 2, Err: err}
			}

			var svc *judge.Service
			if judgeCfg.Enabled() {
				svc, err = judge.NewService(judgeCfg, logger)
				if err != nil {
					// A misconfigured judge must not take the tools down
					// with it; run unjudged and say so loudly.
					logger.Warn("security judge disabled",
						"error", err,
						"service", judgeCfg.Service)
					svc = nil
				} else {
					logger.Info("security judge enabled",
						"service", judgeCfg.Service,
						"model", judgeCfg.Model,
						"fail_mode", judgeCfg.FailMode)
				}
			} else {
				logger.Info("security judge not configured, tool calls run unjudged")
			}

			dispatcher := tools.NewDispatcher(&runner.ExecRunner{}, cfg.Multiplex, logger)

			srv := server.NewMCPServer(
				"magehand",
				version,
				server.WithInstructions(tools.Instructions),
				server.WithToolCapabilities(false),
				server.WithResourceCapabilities(false, false),
				server.WithRecovery(),
				server.WithToolHandlerMiddleware(judge.Middleware(svc)),
			)
			tools.Register(srv, dispatcher)

			logger.Info("magehand serving on stdio",
				"version", version,
				"multiplex", cfg.Multiplex,
				"log_file", cfg.LogFile)

			return server.ServeStdio(srv)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&logFile, "log-file", "", "tool call log path (default: state dir)")
	cmd.Flags().BoolVar(&multiplex, "multiplex", false, "enable ssh connection multiplexing")

	return cmd
}

// newLogger builds a JSON slog logger writing to stderr and, when the
// log file can be opened, to the tool call log as well. Stdout is off
// limits: it carries the MCP wire protocol.
func newLogger(path string) (*slog.Logger, func(), error) {
	sinks := []io.Writer{os.Stderr}
	closeLog := func() {}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		sinks = append(sinks, f)
		closeLog = func() { _ = f.Close() }
	}

	handler := slog.NewJSONHandler(io.MultiWriter(sinks...), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler), closeLog, nil
}
