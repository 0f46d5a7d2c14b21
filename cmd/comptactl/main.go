package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "comptactl"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%sError:%s %s\n", Red, ResetColor, err)
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := rootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func rootCmd() *cobra.Command {
	var opts globalOptions

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Compta Maroc session client",
		Long: `comptactl signs in to the Compta Maroc accounting API and keeps the session
(token, refreshToken and user) in the configured store between runs.

Configuration comes from the environment or a .env file: API_BASE_URL,
API_TIMEOUT, STORAGE_BACKEND (memory, file, sqlite, redis), LOG_LEVEL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&opts.metrics, "metrics", false, "Print client request and refresh counters after the command")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(
		loginCmd(&opts),
		registerCmd(&opts),
		logoutCmd(&opts),
		whoamiCmd(&opts),
		statusCmd(&opts),
		validateCmd(&opts),
		changePasswordCmd(&opts),
		getCmd(&opts),
		routeCmd(&opts),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			displayAppname(cmd, "Compta Maroc")
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	}
}

func displayAppname(cmd *cobra.Command, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(cmd.OutOrStdout(), myFigure.String())
}
