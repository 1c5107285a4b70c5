package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swiftos/birdy/internal/messages"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   messages.CacheUse,
		Short: messages.CacheShort,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   messages.CachePathUse,
		Short: messages.CachePathShort,
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), a.fetcher.Dir())
			return err
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   messages.CacheCleanUse,
		Short: messages.CacheCleanShort,
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			n, err := a.fetcher.Clean()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), messages.CacheCleanedFmt, n, a.fetcher.Dir())
			return err
		}),
	})
	return cmd
}
