// Package txn runs the install and remove transactions that keep the manifest
// consistent with the files on disk.
package txn

import (
	"errors"
	"fmt"

	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/messages"
	"github.com/swiftos/birdy/internal/telemetry"
)

// Op names a transaction.
type Op string

// Transactions.
const (
	OpInstall Op = "install"
	OpRemove  Op = "remove"
)

// Stage names a step of a transaction.
type Stage string

// Install stages run resolve, fetch, extract, persist, cleanup.
// Remove stages run resolve (when no version was given), lookup, confirm, delete, persist.
const (
	StageValidate Stage = "validate"
	StageResolve  Stage = "resolve"
	StageFetch    Stage = "fetch"
	StageExtract  Stage = "extract"
	StagePersist  Stage = "persist"
	StageCleanup  Stage = "cleanup"
	StageLookup   Stage = "lookup"
	StageConfirm  Stage = "confirm"
	StageDelete   Stage = "delete"
)

// StageError reports the stage at which a transaction failed.
type StageError struct {
	Op      Op
	Name    string
	Version string
	Stage   Stage
	Err     error
}

func (e *StageError) Error() string {
	subject := e.Name
	if e.Version != "" {
		subject = e.Name + "@" + e.Version
	}
	return fmt.Sprintf(messages.TxnStageErrorFmt, e.Op, subject, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage recorded on err, if any.
func FailedStage(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case errors.Is(err, errs.ErrAborted):
		return telemetry.OutcomeAborted
	default:
		return telemetry.OutcomeFailure
	}
}
