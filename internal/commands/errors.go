package commands

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to command errors so CLI and embedding callers can
// branch on failures without string matching.
const (
	CodeValidation      = "PAGEMILL_CMD_VALIDATION"
	CodeCanceled        = "PAGEMILL_CMD_CANCELED"
	CodeTimeout         = "PAGEMILL_CMD_TIMEOUT"
	CodeContextFailure  = "PAGEMILL_CMD_CONTEXT"
	CodeExecutionFailed = "PAGEMILL_CMD_EXECUTION"
)

// wrap categorizes an error once; errors already carrying a category pass
// through untouched so the outermost wrap wins.
func wrap(err error, category goerrors.Category, message, code string) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}
	return goerrors.Wrap(err, category, message).WithTextCode(code)
}

func wrapValidationError(err error) error {
	return wrap(err, goerrors.CategoryValidation, "command message failed validation", CodeValidation)
}

func wrapContextError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return wrap(err, goerrors.CategoryCommand, "command canceled before completion", CodeCanceled)
	case errors.Is(err, context.DeadlineExceeded):
		return wrap(err, goerrors.CategoryCommand, "command deadline exceeded", CodeTimeout)
	default:
		return wrap(err, goerrors.CategoryCommand, "command context failed", CodeContextFailure)
	}
}

func wrapExecuteError(err error) error {
	return wrap(err, goerrors.CategoryCommand, "command execution failed", CodeExecutionFailed)
}
