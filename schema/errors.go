package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates the component was shut down.
	ErrClosed = errors.New("closed")
	// ErrInvalidTerminal indicates an empty or malformed terminal id.
	ErrInvalidTerminal = errors.New("invalid terminal id")
	// ErrEmptyCommand indicates a command send without text.
	ErrEmptyCommand = errors.New("empty command")
	// ErrTerminalNotFound indicates the remote does not know the terminal.
	ErrTerminalNotFound = errors.New("terminal not found")
)

// NetworkError reports a transport failure or a non-success status without a
// usable error body.
type NetworkError struct {
	Op     string
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.Status, e.Err)
		}
		return fmt.Sprintf("%s %s: status %d", e.Op, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RemoteError reports a well-formed rejection carrying a detail message.
type RemoteError struct {
	Op     string
	Status int
	Detail string
}

func (e *RemoteError) Error() string {
	return e.Detail
}

// Is maps 404 rejections onto ErrTerminalNotFound.
func (e *RemoteError) Is(target error) bool {
	return target == ErrTerminalNotFound && e.Status == 404
}

// ParseError reports a malformed frame or payload.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
