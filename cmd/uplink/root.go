package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/DukeRupert/uplink/internal"
	"github.com/DukeRupert/uplink/internal/authform"
)

// identityFactory builds the identity backend for one command run. The
// returned close function is never nil.
type identityFactory func(ctx context.Context, logger *slog.Logger) (authform.Identity, func(), error)

// rootConfig holds flags shared by every subcommand.
type rootConfig struct {
	logLevel    string
	newIdentity identityFactory
}

// identityFromEnv selects the backend the same way the server does.
func identityFromEnv(ctx context.Context, logger *slog.Logger) (authform.Identity, func(), error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, func() {}, err
	}
	return internal.NewIdentity(ctx, cfg, logger)
}

// NewRootCmd creates the root command for the uplink CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(identityFromEnv)
}

func newRootCmd(newIdentity identityFactory) *cobra.Command {
	cfg := &rootConfig{newIdentity: newIdentity}

	cmd := &cobra.Command{
		Use:   "uplink",
		Short: "Uplink - operator login and enrollment",
		Long: `Uplink signs operators in to the identity service, or enrolls new
operators and provisions their profile. The backend is selected with
IDENTITY_PROVIDER, exactly as for the web server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfg.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(newLoginCmd(cfg))
	cmd.AddCommand(newSignupCmd(cfg))

	return cmd
}

// logger writes diagnostics to the command's stderr.
func (c *rootConfig) logger(cmd *cobra.Command) *slog.Logger {
	return internal.NewLogger(cmd.ErrOrStderr(), "development", c.logLevel)
}
