package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/manifest"
	"github.com/swiftos/birdy/internal/messages"
	"github.com/swiftos/birdy/internal/terminal"
	"github.com/swiftos/birdy/internal/txn"
)

var executeFunc = execute

// Version, Commit, and BuildDate are overridden at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	runMain(os.Args, os.Stdin, os.Stdout, os.Stderr, os.Exit)
}

// execute runs the CLI command with the provided args and streams.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	cmd := newRootCmd()
	cmd.Version = versionString()
	cmd.SetVersionTemplate(messages.VersionTemplate)
	if len(args) > 1 {
		cmd.SetArgs(args[1:])
	} else {
		cmd.SetArgs([]string{})
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if !terminal.IsTerminalWriter(stdout) {
		color.NoColor = true
	}
	return cmd.ExecuteContext(ctx)
}

// runMain executes the CLI and exits with the code of the failure kind, if any.
// SIGINT and SIGTERM cancel the command context so in-flight downloads stop.
func runMain(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer, exit func(int)) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := executeFunc(ctx, args, stdin, stdout, stderr)
	if err == nil {
		return
	}
	_, _ = fmt.Fprintln(stderr, color.RedString(messages.ErrorFmt, err))
	if hint := failureHint(err); hint != "" {
		_, _ = fmt.Fprintln(stderr, color.YellowString(hint))
	}
	exit(errs.ExitCode(err))
}

// failureHint names the flag that gets past a known failure, or returns "".
func failureHint(err error) string {
	if manifest.IsCorrupt(err) {
		return messages.HintRecoverCorrupt
	}
	if stage, ok := txn.FailedStage(err); ok && stage == txn.StageDelete && errors.Is(err, fs.ErrNotExist) {
		return messages.HintIgnoreMissing
	}
	return ""
}

// versionString formats Version with optional commit and build date metadata.
func versionString() string {
	meta := []string{}
	if Commit != "" && Commit != "unknown" {
		meta = append(meta, fmt.Sprintf(messages.VersionCommitFmt, Commit))
	}
	if BuildDate != "" && BuildDate != "unknown" {
		meta = append(meta, fmt.Sprintf(messages.VersionBuildFmt, BuildDate))
	}
	if len(meta) == 0 {
		return Version
	}
	return fmt.Sprintf(messages.VersionFullFmt, Version, strings.Join(meta, ", "))
}
