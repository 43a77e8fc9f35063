package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"db_changelog_migrator/internal/auth"
	"db_changelog_migrator/internal/config"
	"db_changelog_migrator/internal/db"
	httpserver "db_changelog_migrator/internal/http"
	"db_changelog_migrator/internal/logging"
	"db_changelog_migrator/internal/migerr"
	"db_changelog_migrator/internal/migrate"
	"db_changelog_migrator/internal/report"
	"db_changelog_migrator/internal/script"
	"db_changelog_migrator/internal/secret"
	"db_changelog_migrator/internal/version"
)

type globalFlags struct {
	path      string
	env       string
	force     bool
	yes       bool
	logLevel  string
	logFormat string
}

// app is the per-invocation wiring shared by every subcommand.
type app struct {
	engine *migrate.Engine
	env    config.Environment
	logger *slog.Logger
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "migrator",
		Short:         "Apply versioned SQL change scripts and track them in a changelog table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.path, "path", ".", "base directory holding scripts/, environments/ and drivers/")
	pf.StringVar(&flags.env, "env", "development", "environment name (environments/<env>.properties)")
	pf.BoolVar(&flags.force, "force", false, "keep executing a script after a failing statement")
	pf.BoolVar(&flags.yes, "yes", false, "do not ask for confirmation before undoing changes")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(
		newUpCmd(flags),
		newDownCmd(flags),
		newPendingCmd(flags),
		newVersionCmd(flags),
		newStatusCmd(flags),
		newBootstrapCmd(flags),
		newServeCmd(flags),
		newNewCmd(flags),
		newEncryptCmd(),
	)
	return root
}

func newApp(cmd *cobra.Command, flags *globalFlags) (*app, error) {
	logger, _ := logging.WithRun(logging.NewLogger(flags.logLevel, flags.logFormat, cmd.ErrOrStderr()))

	paths, err := config.ResolvePaths(flags.path)
	if err != nil {
		return nil, err
	}
	env, err := config.Load(afero.NewOsFs(), paths, flags.env)
	if err != nil {
		return nil, err
	}
	logger = logger.With("env", env.Name)
	logger.Debug("environment loaded", "file", env.File, "driver", env.Driver, "changelog", env.Changelog)

	engine, err := migrate.New(migrate.Options{
		FS:       afero.NewOsFs(),
		Paths:    paths,
		Env:      env,
		Registry: db.NewRegistry(logger),
		Force:    flags.force,
		Out:      cmd.OutOrStdout(),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return &app{engine: engine, env: env, logger: logger, out: cmd.OutOrStdout()}, nil
}

func stepsArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	return migrate.ParseSteps(args[0])
}

func newUpCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "up [steps]",
		Short: "Apply pending changes, all of them unless a step count is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := stepsArg(args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			res, err := a.engine.Up(cmd.Context(), steps)
			report.Summary(a.out, res)
			return err
		},
	}
}

func newDownCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "down [steps]",
		Short: "Undo the most recently applied changes, one unless a step count is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := stepsArg(args)
			if err != nil {
				return err
			}
			if steps == 0 {
				steps = 1
			}
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			ok, err := confirm(flags, fmt.Sprintf("Undo the last %d change(s) in %s?", steps, a.env.Name))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(a.out, "Aborted.")
				return nil
			}
			res, err := a.engine.Down(cmd.Context(), steps)
			report.Summary(a.out, res)
			return err
		},
	}
}

func newPendingCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List changes that have not been applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			scripts, err := a.engine.Pending(cmd.Context())
			if err != nil {
				return err
			}
			report.Pending(a.out, scripts)
			return nil
		},
	}
}

func newVersionCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version <id>",
		Short: "Migrate up or down until the given change is the last one applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := version.Parse(args[0])
			if err != nil {
				return &migerr.ConfigurationError{Key: "version", Err: err}
			}
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			res, err := a.engine.Version(cmd.Context(), target)
			report.Summary(a.out, res)
			return err
		},
	}
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every change and whether it has been applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			changes, err := a.engine.Status(cmd.Context())
			if err != nil {
				return err
			}
			table, err := report.StatusTable(changes)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, table)
			return nil
		},
	}
}

func newBootstrapCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Run scripts/bootstrap.sql if the changelog does not exist yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			ran, err := a.engine.Bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			if !ran {
				fmt.Fprintln(a.out, "Nothing to bootstrap.")
			}
			return nil
		},
	}
}

func newNewCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "new <description>",
		Short: "Create an empty change script stamped with the current time in the environment time zone",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := config.ResolvePaths(flags.path)
			if err != nil {
				return err
			}
			fs := afero.NewOsFs()
			env, err := config.Load(fs, paths, flags.env)
			if err != nil {
				return err
			}
			sc, err := script.NewSource(fs, env.ScriptCharset).Create(paths.Scripts, strings.Join(args, " "), time.Now().In(env.TimeZone))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", sc.Path)
			return nil
		},
	}
}

// newEncryptCmd seals a value for use as password= in an environment file.
func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Seal a password with the key in " + secret.KeyEnv,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secret.ParseKey(os.Getenv(secret.KeyEnv))
			if err != nil {
				return &migerr.ConfigurationError{Key: secret.KeyEnv, Err: err}
			}
			sealed, err := secret.Seal(key, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		addr     string
		oidcCfg  auth.OIDCConfig
		required bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only JSON status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}

			var authn auth.Authenticator
			switch {
			case oidcCfg.Issuer != "":
				bearer, err := auth.NewBearerAuthenticator(ctx, oidcCfg)
				if err != nil {
					return err
				}
				authn = bearer
			case required:
				return &migerr.ConfigurationError{Key: "oidc-issuer", Err: errors.New("is required when --require-auth is set")}
			default:
				a.logger.Info("status api is served without authentication")
			}

			return httpserver.New(addr, a.logger, a.engine, authn).Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&oidcCfg.Issuer, "oidc-issuer", "", "OIDC issuer whose ID tokens are accepted as bearer tokens")
	cmd.Flags().StringVar(&oidcCfg.ClientID, "oidc-client-id", "", "expected audience of bearer tokens")
	cmd.Flags().StringSliceVar(&oidcCfg.AllowedDomains, "oidc-allowed-domain", nil, "restrict callers to these email domains")
	cmd.Flags().BoolVar(&required, "require-auth", false, "refuse to start without an OIDC issuer")
	return cmd
}

func confirm(flags *globalFlags, message string) (bool, error) {
	if flags.yes {
		return true, nil
	}
	ok := false
	if err := survey.AskOne(&survey.Confirm{Message: message, Default: false}, &ok); err != nil {
		return false, fmt.Errorf("confirmation: %w", err)
	}
	return ok, nil
}
