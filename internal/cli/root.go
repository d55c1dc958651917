// Package cli implements the artfolio-sync command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/artfolio/artfolio-sync/internal/platform/config"
)

// RootOptions holds the global flags shared by every command. Empty values
// leave the file, environment and preset values untouched.
type RootOptions struct {
	ConfigPath   string
	Mode         string
	ListenAddr   string
	Namespace    string
	StoreDriver  string
	LoggingLevel string
	DevHeader    string
}

func (o *RootOptions) loaderOptions() config.LoaderOptions {
	return config.LoaderOptions{
		ConfigPath: o.ConfigPath,
		ModeFlag:   o.Mode,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:   &o.ListenAddr,
			Namespace:    &o.Namespace,
			StoreDriver:  &o.StoreDriver,
			LoggingLevel: &o.LoggingLevel,
			DevHeader:    &o.DevHeader,
		},
	}
}

// NewRootCommand creates the artfolio-sync root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "artfolio-sync",
		Short: "Social graph, request workflows and notifications for Artfolio",
		Long: `artfolio-sync keeps follows, favorites, collaboration and review requests
and the notification inbox of Artfolio artists in one store, and pushes
every change to connected views over a websocket.`,
		SilenceUsage: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.ConfigPath, "config", "", "path to TOML config file (optional)")
	f.StringVar(&opts.Mode, "mode", "", "operating mode: strict or dev (overrides config)")
	f.StringVar(&opts.ListenAddr, "listen", "", "listen address (overrides config)")
	f.StringVar(&opts.Namespace, "namespace", "", "store namespace (overrides config)")
	f.StringVar(&opts.StoreDriver, "store-driver", "", "store driver (overrides config)")
	f.StringVar(&opts.LoggingLevel, "logging-level", "", "log level: trace, debug, info, warn, error (overrides config)")
	f.StringVar(&opts.DevHeader, "dev-header", "", "trust the X-Actor-ID header: true or false (dev mode only)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewHashTokenCommand())

	return cmd
}
