package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/swiftos/birdy/internal/messages"
	"github.com/swiftos/birdy/internal/txn"
)

func newInstallCmd(opts *rootOptions) *cobra.Command {
	var root string
	var staged bool

	cmd := &cobra.Command{
		Use:   messages.InstallUse,
		Short: messages.InstallShort,
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			req := txn.InstallRequest{Name: args[0], Root: root}
			if len(args) > 1 {
				req.Version = args[1]
			}
			if req.Root == "" {
				req.Root = a.cfg.Paths.DefaultRoot
			}

			result, err := a.installer(staged).Install(cmd.Context(), req)
			if err != nil {
				return err
			}
			rec := result.Record
			_, _ = fmt.Fprint(cmd.OutOrStdout(), color.GreenString(messages.InstallDoneFmt, rec.Name, rec.Version, rec.InstallRoot, len(rec.Files)))
			if result.CleanupErr != nil {
				_, _ = color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), messages.InstallCleanupWarn, result.CleanupErr)
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&root, "root", "r", "", messages.InstallRootFlag)
	cmd.Flags().BoolVar(&staged, "staged", false, messages.InstallStagedFlag)
	return cmd
}
