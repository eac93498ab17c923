package util

import (
	"errors"
	"strings"
	"testing"
)

func TestAuthError(t *testing.T) {
	err := NewAuthError("router-1", "bad api key")
	msg := err.Error()
	if !strings.Contains(msg, "router-1") || !strings.Contains(msg, "bad api key") {
		t.Errorf("Error message missing fields: %s", msg)
	}
	if !errors.Is(err, ErrAuthFailed) {
		t.Error("AuthError should unwrap to ErrAuthFailed")
	}
}

func TestProtocolError(t *testing.T) {
	tests := []struct {
		code     string
		sentinel error
	}{
		{"UNKNOWN_TYPE", ErrUnknownType},
		{"TIMEOUT", ErrTimeout},
		{"BAD_JSON", ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := NewProtocolError("frame-1", tt.code, "details")
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("ProtocolError(%s) should unwrap to %v", tt.code, tt.sentinel)
			}
			if !strings.Contains(err.Error(), "frame-1") {
				t.Errorf("Error message should contain frame id: %s", err.Error())
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("field is required")
		msg := err.Error()
		if !strings.Contains(msg, "field is required") {
			t.Errorf("Error message should contain the error: %s", msg)
		}
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("ValidationError should unwrap to ErrValidationFailed")
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("field1 is required", "field2 is invalid", "field3 out of range")
		msg := err.Error()
		if !strings.Contains(msg, "field1") || !strings.Contains(msg, "field2") || !strings.Contains(msg, "field3") {
			t.Errorf("Error message should contain all errors: %s", msg)
		}
	})
}

func TestValidationBuilder(t *testing.T) {
	t.Run("no errors", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Add(true, "this should not appear")
		v.Add(true, "neither should this")

		if v.HasErrors() {
			t.Error("Should not have errors when all conditions are true")
		}
		if err := v.Build(); err != nil {
			t.Errorf("Build() should return nil when no errors: %v", err)
		}
	})

	t.Run("with errors", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Add(false, "first error")
		v.Add(true, "this passes")
		v.Add(false, "second error")
		v.AddError("unconditional error")
		v.AddErrorf("formatted error: %d", 42)

		if !v.HasErrors() {
			t.Error("Should have errors")
		}

		err := v.Build()
		if err == nil {
			t.Fatal("Build() should return error")
		}

		validationErr, ok := err.(*ValidationError)
		if !ok {
			t.Fatalf("Expected *ValidationError, got %T", err)
		}
		if len(validationErr.Errors) != 4 {
			t.Errorf("Expected 4 errors, got %d", len(validationErr.Errors))
		}
	})

	t.Run("chaining", func(t *testing.T) {
		err := (&ValidationBuilder{}).
			Add(false, "error1").
			Add(false, "error2").
			AddErrorf("error%d", 3).
			Build()

		if err == nil {
			t.Fatal("Expected error")
		}
		if !strings.Contains(err.Error(), "error1") {
			t.Errorf("Missing error1 in: %s", err.Error())
		}
	})
}

func TestApplyError(t *testing.T) {
	t.Run("apply only", func(t *testing.T) {
		err := NewApplyError("wifi", "commit", errors.New("write failed"))
		if !errors.Is(err, ErrApplyFailed) {
			t.Error("ApplyError without rollback attempt should unwrap to ErrApplyFailed")
		}
		if !strings.Contains(err.Error(), "wifi") || !strings.Contains(err.Error(), "commit") {
			t.Errorf("Error message missing fields: %s", err.Error())
		}
	})

	t.Run("apply and rollback failed", func(t *testing.T) {
		err := NewApplyError("wan", "commit", errors.New("write failed"))
		err.RollbackAttempt = errors.New("restore failed")
		if !errors.Is(err, ErrRollbackFailed) {
			t.Error("ApplyError with failed rollback should unwrap to ErrRollbackFailed")
		}
		if !strings.Contains(err.Error(), "restore failed") {
			t.Errorf("Error message should mention rollback failure: %s", err.Error())
		}
	})
}

func TestSubsystemError(t *testing.T) {
	t.Run("read failure", func(t *testing.T) {
		err := NewSubsystemError("read", "/proc/net/dev", errors.New("no such file"), false)
		if !errors.Is(err, ErrReadFailed) {
			t.Error("non-timeout SubsystemError should unwrap to ErrReadFailed")
		}
	})

	t.Run("subprocess timeout", func(t *testing.T) {
		err := NewSubsystemError("exec", "hostapd_cli", errors.New("context deadline exceeded"), true)
		if !errors.Is(err, ErrSubprocessTimeout) {
			t.Error("timed-out SubsystemError should unwrap to ErrSubprocessTimeout")
		}
	})
}

func TestSessionError(t *testing.T) {
	tests := []struct {
		reason   string
		sentinel error
	}{
		{"SUPERSEDED", ErrSuperseded},
		{"IDLE", ErrIdle},
		{"DEVICE_OFFLINE", ErrDeviceOffline},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			err := NewSessionError("router-1", tt.reason)
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("SessionError(%s) should unwrap to %v", tt.reason, tt.sentinel)
			}
		})
	}
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrInvalidConfig,
		ErrPermissionDenied,
		ErrAuthFailed,
		ErrMalformed,
		ErrUnknownType,
		ErrTimeout,
		ErrValidationFailed,
		ErrApplyFailed,
		ErrRollbackFailed,
		ErrNoSnapshot,
		ErrReadFailed,
		ErrSubprocessTimeout,
		ErrServiceRestartFailed,
		ErrSuperseded,
		ErrIdle,
		ErrDeviceOffline,
	}

	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v == %v", err1, err2)
			}
		}
	}
}

func TestErrorsIsWrapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"AuthError", NewAuthError("d1", "bad key"), ErrAuthFailed},
		{"ValidationError", NewValidationError("msg"), ErrValidationFailed},
		{"ApplyError", NewApplyError("s", "step", errors.New("x")), ErrApplyFailed},
		{"SubsystemError", NewSubsystemError("op", "src", errors.New("x"), false), ErrReadFailed},
		{"SessionError", NewSessionError("d1", "IDLE"), ErrIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("%s should wrap %v", tt.name, tt.sentinel)
			}
		})
	}
}
