package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/manifest"
	"github.com/swiftos/birdy/internal/messages"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var output string
	var files bool

	cmd := &cobra.Command{
		Use:   messages.ListUse,
		Short: messages.ListShort,
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			format := strings.ToLower(strings.TrimSpace(output))
			switch format {
			case outputText, outputJSON, outputYAML:
			default:
				return errs.New(errs.ErrInvalidInput, fmt.Sprintf(messages.ListUnknownOutputFmt, output))
			}

			snap, err := a.store.Inspect()
			if err != nil {
				return err
			}
			if snap.State == manifest.StateCorrupt && a.cfg.Manifest.RecoverCorrupt {
				_, _ = color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), messages.ListRecoveredWarnFmt, a.store.Path(), snap.Err)
			}
			records, err := a.store.List()
			if err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), format, records, files)
		}),
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, messages.ListOutputFlag)
	cmd.Flags().BoolVar(&files, "files", false, messages.ListFilesFlag)
	return cmd
}

// writeRecords renders records in format. Text output is one line per record.
func writeRecords(out io.Writer, format string, records []manifest.Record, files bool) error {
	if records == nil {
		records = []manifest.Record{}
	}
	switch format {
	case outputJSON:
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf(messages.ListEncodeFmt, err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case outputYAML:
		data, err := yaml.Marshal(records)
		if err != nil {
			return fmt.Errorf(messages.ListEncodeFmt, err)
		}
		_, err = out.Write(data)
		return err
	}
	for _, rec := range records {
		if _, err := fmt.Fprintln(out, rec.String()); err != nil {
			return err
		}
		if !files {
			continue
		}
		for _, file := range rec.Files {
			if _, err := fmt.Fprintf(out, messages.ListFileLineFmt, file); err != nil {
				return err
			}
		}
	}
	return nil
}
