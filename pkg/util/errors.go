// Package util provides utility functions and the shared error taxonomy.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every typed error below Unwraps to exactly one of these
// (a SessionError only for the reasons SUPERSEDED, IDLE and DEVICE_OFFLINE;
// any other reason Unwraps to nil), so callers can classify failures with
// errors.Is without caring which component produced them.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrAlreadyExists    = errors.New("resource already exists")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrPermissionDenied = errors.New("permission denied")

	// Authentication — terminal, no retry with the same credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// Protocol — transient, may recover on the next frame.
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownType = errors.New("unknown message type")
	ErrTimeout     = errors.New("operation timed out")

	// Configuration.
	ErrValidationFailed = errors.New("validation failed")
	ErrApplyFailed      = errors.New("apply failed")
	ErrRollbackFailed   = errors.New("rollback failed")
	ErrNoSnapshot       = errors.New("no before-image snapshot to roll back to")

	// Subsystem.
	ErrReadFailed             = errors.New("read failed")
	ErrSubprocessTimeout      = errors.New("subprocess timed out")
	ErrServiceRestartFailed   = errors.New("service restart failed")

	// Session.
	ErrSuperseded    = errors.New("session superseded by a newer connection")
	ErrIdle          = errors.New("session idle timeout")
	ErrDeviceOffline = errors.New("device offline")
)

// AuthError represents a failed authentication attempt.
type AuthError struct {
	DeviceID string
	Reason   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed for device %q: %s", e.DeviceID, e.Reason)
}

func (e *AuthError) Unwrap() error { return ErrAuthFailed }

// NewAuthError creates an AuthError.
func NewAuthError(deviceID, reason string) *AuthError {
	return &AuthError{DeviceID: deviceID, Reason: reason}
}

// ProtocolError represents a malformed frame, an unknown type, or a timeout
// while waiting for a reply — all recoverable on the next frame.
type ProtocolError struct {
	FrameID string
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error [%s] on frame %s: %s", e.Code, e.FrameID, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	switch e.Code {
	case "UNKNOWN_TYPE":
		return ErrUnknownType
	case "TIMEOUT":
		return ErrTimeout
	default:
		return ErrMalformed
	}
}

// NewProtocolError creates a ProtocolError.
func NewProtocolError(frameID, code, message string) *ProtocolError {
	return &ProtocolError{FrameID: frameID, Code: code, Message: message}
}

// ValidationError represents one or more validation failures for a single document.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// NewValidationError creates a validation error from messages.
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder accumulates validation errors across a document's fields.
type ValidationBuilder struct {
	errors []string
}

// Add appends message if condition is false.
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddError appends message unconditionally.
func (v *ValidationBuilder) AddError(message string) *ValidationBuilder {
	v.errors = append(v.errors, message)
	return v
}

// AddErrorf appends a formatted message.
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors reports whether any message has been added.
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the accumulated ValidationError, or nil if empty.
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// ApplyError represents a failed apply, naming the step that failed so the
// caller can report it verbatim in CONFIG_FAIL.
type ApplyError struct {
	Section         string
	Step            string
	Err             error
	RollbackAttempt error // non-nil if rollback was also attempted and failed
}

func (e *ApplyError) Error() string {
	msg := fmt.Sprintf("apply failed for section %s at step %q: %v", e.Section, e.Step, e.Err)
	if e.RollbackAttempt != nil {
		msg += fmt.Sprintf(" (rollback also failed: %v)", e.RollbackAttempt)
	}
	return msg
}

func (e *ApplyError) Unwrap() error {
	if e.RollbackAttempt != nil {
		return ErrRollbackFailed
	}
	return ErrApplyFailed
}

// NewApplyError creates an ApplyError.
func NewApplyError(section, step string, err error) *ApplyError {
	return &ApplyError{Section: section, Step: step, Err: err}
}

// SubsystemError represents a failure reading or mutating underlying router
// OS state (subprocess or pseudo-file I/O).
type SubsystemError struct {
	Op      string
	Source  string
	Err     error
	TimedOut bool
}

func (e *SubsystemError) Error() string {
	return fmt.Sprintf("subsystem error during %s (%s): %v", e.Op, e.Source, e.Err)
}

func (e *SubsystemError) Unwrap() error {
	if e.TimedOut {
		return ErrSubprocessTimeout
	}
	return ErrReadFailed
}

// NewSubsystemError creates a SubsystemError.
func NewSubsystemError(op, source string, err error, timedOut bool) *SubsystemError {
	return &SubsystemError{Op: op, Source: source, Err: err, TimedOut: timedOut}
}

// SessionError represents a server-side session termination reason.
type SessionError struct {
	DeviceID string
	Reason   string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session error for device %q: %s", e.DeviceID, e.Reason)
}

func (e *SessionError) Unwrap() error {
	switch e.Reason {
	case "SUPERSEDED":
		return ErrSuperseded
	case "IDLE":
		return ErrIdle
	case "DEVICE_OFFLINE":
		return ErrDeviceOffline
	default:
		return nil
	}
}

// NewSessionError creates a SessionError.
func NewSessionError(deviceID, reason string) *SessionError {
	return &SessionError{DeviceID: deviceID, Reason: reason}
}
