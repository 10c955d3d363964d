package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-client/bootstrap"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs to build a runtime.
type app struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "authctl",
		Short: "Manage an authenticated API session from the terminal",
		Long: `authctl signs in to the authentication service, keeps the session
on disk between invocations and sends authenticated API requests.

Configuration comes from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	rootCmd.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.refreshCmd(),
		a.statusCmd(),
		a.whoamiCmd(),
		a.requestCmd(),
		a.guardCmd(),
		a.canCmd(),
		a.policyCmd(),
		a.watchCmd(),
		versionCmd(),
	)
	return rootCmd
}

// withRuntime builds a runtime for one command and always closes it.
func (a *app) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *bootstrap.Runtime) error) (err error) {
	cfg, err := config.Load(a.envFiles...)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.GetLogLevel())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := bootstrap.New(ctx, cfg, bootstrap.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, rt)
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func printBanner(w io.Writer, appName string) {
	fmt.Fprintln(w, figure.NewFigure(appName, "cybermedium", true).String())
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}

func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
