// Package apperr defines the sentinel errors shared across pensieve packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid argument")

	// ErrConfigNotFound is returned when no .collection.json exists at or above a directory.
	ErrConfigNotFound = errors.New("collection config not found")
	// ErrConfigAlreadyExists is returned when initializing inside an existing collection.
	ErrConfigAlreadyExists = errors.New("collection config already exists")
	// ErrMissingFile is returned when an import or send source does not exist.
	ErrMissingFile = errors.New("missing file")
	// ErrDanglingReference marks a link whose counterpart note cannot be resolved.
	// It is logged and never aborts the surrounding mutation.
	ErrDanglingReference = errors.New("dangling reference")
	// ErrTemplateExecution wraps script failures and explicit error responses.
	ErrTemplateExecution = errors.New("template execution failed")
	// ErrPortTransfer wraps copy/remove failures while staging or delivering notes.
	ErrPortTransfer = errors.New("port transfer failed")
)
