package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExportInProgress is returned when an export or save is requested
	// while another one is running for the same session.
	ErrExportInProgress = errors.New("export already in progress")
	// ErrPromptPending is returned for pointer input while a content prompt
	// waits for confirmation.
	ErrPromptPending = errors.New("content prompt pending")
	// ErrNoPrompt is returned when confirming or cancelling with no prompt open.
	ErrNoPrompt = errors.New("no content prompt open")
	// ErrNoImage is returned when the image tool is selected with nothing staged.
	ErrNoImage = errors.New("no image staged")
	// ErrNoDocument is wrapped by ToolPreconditionError.
	ErrNoDocument = errors.New("no document loaded")
)

// ToolPreconditionError reports a tool action attempted before a document
// was loaded. The session is left unchanged.
type ToolPreconditionError struct {
	Action string
}

func (e *ToolPreconditionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, ErrNoDocument)
}

func (e *ToolPreconditionError) Unwrap() error { return ErrNoDocument }

// ImageError reports staged image bytes in a format that cannot be embedded.
type ImageError struct {
	Err error
}

func (e *ImageError) Error() string { return fmt.Sprintf("unsupported image: %v", e.Err) }

func (e *ImageError) Unwrap() error { return e.Err }

// Level grades a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "info"
}

// Notice is a transient message for the user.
type Notice struct {
	Level   Level
	Message string
	At      time.Time
}
