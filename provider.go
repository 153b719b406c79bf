package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/AltairaLabs/cloudysetup/internal/cloudysetup"
)

// cliApp carries the output streams and service wiring shared by every
// command.
type cliApp struct {
	stdout io.Writer
	stderr io.Writer

	// serviceOpts are appended when a command builds its Service; tests use
	// them to inject simulated clients.
	serviceOpts []cloudysetup.ServiceOption
}

// rootCmd builds the command tree.
func (a *cliApp) rootCmd() *cli.Command {
	return &cli.Command{
		Name:      "cloudysetup",
		Usage:     "Describe AWS resources in plain English and provision them through Cloud Control",
		Version:   fmt.Sprintf("%s (commit %s, built %s)", cloudysetup.Version, cloudysetup.Commit, cloudysetup.Date),
		Writer:    a.stdout,
		ErrWriter: a.stderr,
		// Exit codes are mapped by run.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "region",
				Usage:   "AWS region for control-plane and model calls",
				Sources: cli.EnvVars("AWS_REGION", "AWS_DEFAULT_REGION"),
			},
			&cli.StringFlag{
				Name:    "access-key",
				Usage:   "AWS access key ID (default: the AWS credential chain)",
				Sources: cli.EnvVars("AWS_ACCESS_KEY_ID"),
			},
			&cli.StringFlag{
				Name:    "secret-key",
				Usage:   "AWS secret access key",
				Sources: cli.EnvVars("AWS_SECRET_ACCESS_KEY"),
			},
			&cli.StringFlag{
				Name:    "session-token",
				Usage:   "AWS session token for temporary credentials",
				Sources: cli.EnvVars("AWS_SESSION_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a JSON config file",
				Sources: cli.EnvVars(cloudysetup.EnvConfigPath),
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Usage:   "Simulate the control plane in memory; model calls still go out",
				Sources: cli.EnvVars(cloudysetup.EnvDryRun),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level: debug, info, warn or error",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"o"},
				Value:   string(formatText),
				Usage:   "Output format: text, json or yaml",
			},
		},
		Commands: []*cli.Command{
			a.generateCmd(),
			a.applyCmd(),
			a.statusCmd(),
			a.getCmd(),
			a.listCmd(),
			a.deleteCmd(),
			a.cancelCmd(),
			a.whoamiCmd(),
			a.helloCmd(),
		},
	}
}

// serviceFromCmd loads the config, applies global flags and returns a
// Service for one command. Non-fatal config warnings are logged.
func (a *cliApp) serviceFromCmd(cmd *cli.Command) (*cloudysetup.Service, error) {
	logger, err := a.logger(cmd.String("log-level"))
	if err != nil {
		return nil, err
	}
	cfg, err := cloudysetup.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if region := cmd.String("region"); region != "" {
		cfg.Region = region
	}
	if cmd.Bool("dry-run") {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, w := range cloudysetup.DiagnoseConfig(cfg) {
		logger.Warn("config warning", "category", w.Category, "message", w.Message, "hint", w.Hint)
	}

	opts := append([]cloudysetup.ServiceOption{cloudysetup.WithLogger(logger)}, a.serviceOpts...)
	return cloudysetup.NewService(cfg, opts...), nil
}

// logger returns a text logger on stderr at the named level.
func (a *cliApp) logger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: lvl})), nil
}
