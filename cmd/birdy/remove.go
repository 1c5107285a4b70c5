package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/swiftos/birdy/internal/messages"
	"github.com/swiftos/birdy/internal/txn"
)

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	var confirm bool
	var ignoreMissing bool

	cmd := &cobra.Command{
		Use:   messages.RemoveUse,
		Short: messages.RemoveShort,
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			req := txn.RemoveRequest{Name: args[0]}
			if len(args) > 1 {
				req.Version = args[1]
			}

			var confirmFn txn.ConfirmFunc
			if confirm {
				confirmFn = confirmRemoval(cmd.InOrStdin(), cmd.OutOrStdout())
			}
			result, err := a.remover(ignoreMissing, confirmFn).Remove(cmd.Context(), req)
			if err != nil {
				return err
			}

			if len(result.Missing) > 0 {
				warn := color.New(color.FgYellow)
				_ = printFilePaths(cmd.ErrOrStderr(), warn.Sprint(messages.RemoveMissingHeader), result.Missing)
			}
			rec := result.Record
			_, _ = fmt.Fprint(cmd.OutOrStdout(), color.GreenString(messages.RemoveDoneFmt, rec.Name, rec.Version, len(result.Deleted)))
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&confirm, "confirm", "c", false, messages.RemoveConfirmFlag)
	cmd.Flags().BoolVar(&ignoreMissing, "ignore-missing", false, messages.RemoveIgnoreMissingFlag)
	return cmd
}
