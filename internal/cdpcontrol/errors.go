package cdpcontrol

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeValidation      = "VALIDATION"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeTabNotFound     = "TAB_NOT_FOUND"
	CodeNotFound        = "NOT_FOUND"
	CodeChannelLost     = "CHANNEL_LOST"
	CodeEvalFailure     = "EVAL_FAILURE"
	CodeEvalTimeout     = "EVAL_TIMEOUT"
	CodeCDPUnavailable  = "CDP_UNAVAILABLE"
	CodeRecoveryFailed  = "RECOVERY_FAILED"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a CodedError.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// Class buckets channel errors so every call site handles a failure the
// same way instead of growing its own retry/ignore logic.
type Class int

const (
	ClassUnknown Class = iota
	// ClassTransientChannel covers broken connections and closed targets;
	// these always route through recovery, never raw to callers.
	ClassTransientChannel
	// ClassInputState covers press/release mismatches; recovered locally by
	// resetting tracked button state.
	ClassInputState
	// ClassIntrospection covers title/URL/eval reads failing on a closing
	// tab; the caller degrades to stale values and continues.
	ClassIntrospection
	// ClassTerminal covers exhausted recovery and permanently-gone pages.
	ClassTerminal
)

// transientHints are substrings in error causes that indicate a broken or
// closed channel worth recovering.
var transientHints = []string{
	"target closed",
	"session closed",
	"session not found",
	"no session with given id",
	"target not found",
	"no target with given id",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
	"not connected",
	"browser has been closed",
	"context canceled",
}

var inputStateHints = []string{
	"already pressed",
	"not pressed",
	"button is not pressed",
}

var introspectionHints = []string{
	"cannot find context",
	"execution context",
	"no execution context",
	"inspected target navigated or closed",
	"deadline exceeded",
}

// Classify maps an underlying channel error onto the handling taxonomy by
// message-pattern matching. Centralized here so call sites stay consistent.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case CodeRecoveryFailed:
			return ClassTerminal
		case CodeChannelLost, CodeCDPUnavailable:
			return ClassTransientChannel
		}
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range inputStateHints {
		if strings.Contains(msg, hint) {
			return ClassInputState
		}
	}
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return ClassTransientChannel
		}
	}
	for _, hint := range introspectionHints {
		if strings.Contains(msg, hint) {
			return ClassIntrospection
		}
	}
	return ClassUnknown
}

// IsSessionGone reports whether an error means the page or session behind a
// call no longer exists, as opposed to a retryable glitch.
func IsSessionGone(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{
		"target closed",
		"session closed",
		"session not found",
		"target not found",
		"no target with given id",
		"no session with given id",
		"browser has been closed",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
