package main

import (
	"errors"

	"github.com/spf13/cobra"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

type rootFlags struct {
	verbose      bool
	sentryDSN    string
	otlpEndpoint string
	environment  string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "daedalus",
		Short:         "Daedalus runs dataflow executors described in a catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.sentryDSN, "sentry-dsn", "", "Report errors to Sentry (default $SENTRY_DSN)")
	cmd.PersistentFlags().StringVar(&flags.otlpEndpoint, "otlp-endpoint", "", "Export spans to this OTLP/HTTP host:port (default $DAEDALUS_OTLP_ENDPOINT)")
	cmd.PersistentFlags().StringVar(&flags.environment, "environment", "", "Deployment environment reported to Sentry and tracing")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newListCmd(flags))
	cmd.AddCommand(newValidateCmd(flags))

	return cmd
}

// exitCode maps error categories to process exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case daedaluserrors.IsConfiguration(err):
		return 2
	case errors.Is(err, errUsage):
		return 64
	default:
		return 1
	}
}

var errUsage = errors.New("usage")
