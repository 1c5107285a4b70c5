package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/swiftos/birdy/internal/manifest"
	"github.com/swiftos/birdy/internal/messages"
	"github.com/swiftos/birdy/internal/terminal"
	"github.com/swiftos/birdy/internal/txn"
)

var isInteractive = terminal.IsInteractive

var runConfirmForm = func(title string, value *bool) error {
	return huh.NewForm(huh.NewGroup(huh.NewConfirm().Title(title).Value(value))).Run()
}

// confirmRemoval lists the record's files and asks before anything is deleted.
// Terminals get a huh form; other streams get a line prompt that defaults to no.
func confirmRemoval(in io.Reader, out io.Writer) txn.ConfirmFunc {
	return func(rec manifest.Record) (bool, error) {
		header := fmt.Sprintf(messages.RemoveFilesHeaderFmt, rec.Name, rec.Version, rec.InstallRoot)
		if err := printFilePaths(out, header, rec.Files); err != nil {
			return false, err
		}
		prompt := fmt.Sprintf(messages.RemoveConfirmPromptFmt, len(rec.Files), rec.Name, rec.Version)
		if isInteractive() {
			return confirmForm(prompt)
		}
		return promptYesNo(in, out, prompt, false)
	}
}

func confirmForm(title string) (bool, error) {
	value := false
	if err := runConfirmForm(title, &value); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return value, nil
}

// promptYesNo asks a yes/no question on a line-oriented stream.
func promptYesNo(in io.Reader, out io.Writer, prompt string, defaultYes bool) (bool, error) {
	reader := bufio.NewReader(in)
	for {
		if defaultYes {
			if _, err := fmt.Fprintf(out, messages.PromptYesDefaultFmt, prompt); err != nil {
				return false, err
			}
		} else {
			if _, err := fmt.Fprintf(out, messages.PromptNoDefaultFmt, prompt); err != nil {
				return false, err
			}
		}
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		response := strings.TrimSpace(line)
		if response == "" {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return defaultYes, nil
		}
		switch strings.ToLower(response) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		if errors.Is(err, io.EOF) {
			return false, fmt.Errorf(messages.PromptInvalidResponse, response)
		}
		if _, err := fmt.Fprintln(out, messages.PromptRetryYesNo); err != nil {
			return false, err
		}
	}
}

// printFilePaths prints a list of file paths with a header.
func printFilePaths(out io.Writer, header string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(out); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(out, header); err != nil {
		return err
	}
	for _, path := range paths {
		if _, err := fmt.Fprintf(out, messages.PromptLineFmt, path); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(out); err != nil {
		return err
	}
	return nil
}
