package main

import (
	"github.com/spf13/cobra"

	"github.com/swiftos/birdy/internal/messages"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath     string
	manifest       string
	cacheDir       string
	registry       string
	logLevel       string
	logFormat      string
	verbose        bool
	recoverCorrupt bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           messages.RootUse,
		Short:         messages.RootShort,
		Long:          messages.RootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", messages.FlagConfig)
	flags.StringVar(&opts.manifest, "manifest", "", messages.FlagManifest)
	flags.StringVar(&opts.cacheDir, "cache-dir", "", messages.FlagCacheDir)
	flags.StringVar(&opts.registry, "registry", "", messages.FlagRegistry)
	flags.StringVar(&opts.logLevel, "log-level", "", messages.FlagLogLevel)
	flags.StringVar(&opts.logFormat, "log-format", "", messages.FlagLogFormat)
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, messages.FlagVerbose)
	flags.BoolVar(&opts.recoverCorrupt, "recover-corrupt", false, messages.FlagRecoverCorrupt)

	cmd.AddCommand(
		newInstallCmd(opts),
		newRemoveCmd(opts),
		newListCmd(opts),
		newCacheCmd(opts),
	)
	return cmd
}
