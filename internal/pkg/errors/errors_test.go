package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeValidation, "invalid input")

	if err.Code != CodeValidation {
		t.Errorf("expected code=%s, got %s", CodeValidation, err.Code)
	}
	if err.Message != "invalid input" {
		t.Errorf("expected message='invalid input', got %s", err.Message)
	}
	if len(err.Stack) == 0 {
		t.Error("expected stack trace to be captured")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CodeNotFound, "template %s not found", "tv_1")

	if err.Code != CodeNotFound {
		t.Errorf("expected code=%s, got %s", CodeNotFound, err.Code)
	}
	if err.Message != "template tv_1 not found" {
		t.Errorf("expected formatted message, got %s", err.Message)
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name:     "simple error",
			err:      New(CodeValidation, "invalid"),
			contains: []string{"VALIDATION_ERROR", "invalid"},
		},
		{
			name: "error with op",
			err: &Error{
				Code:    CodeInternal,
				Message: "db failed",
				Op:      "job.fetch",
			},
			contains: []string{"job.fetch", "INTERNAL_ERROR", "db failed"},
		},
		{
			name: "error with underlying",
			err: &Error{
				Code:    CodeInternal,
				Message: "wrapper",
				Err:     fmt.Errorf("underlying error"),
			},
			contains: []string{"wrapper", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			str := tt.err.Error()
			for _, c := range tt.contains {
				if !strings.Contains(str, c) {
					t.Errorf("expected error string to contain %q, got: %s", c, str)
				}
			}
		})
	}
}

func TestWrap(t *testing.T) {
	original := fmt.Errorf("original error")
	wrapped := Wrap(original, "renderer.call", "render call failed")

	if wrapped == nil {
		t.Fatal("expected wrapped error to be non-nil")
	}
	if wrapped.Code != CodeInternal {
		t.Errorf("expected code=%s, got %s", CodeInternal, wrapped.Code)
	}
	if wrapped.Op != "renderer.call" {
		t.Errorf("expected op='renderer.call', got %s", wrapped.Op)
	}
	if wrapped.Err != original {
		t.Error("expected underlying error to be preserved")
	}

	// Test Unwrap
	if errors.Unwrap(wrapped) != original {
		t.Error("Unwrap should return original error")
	}
}

func TestWrapNil(t *testing.T) {
	wrapped := Wrap(nil, "op", "message")
	if wrapped != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapPreservesCode(t *testing.T) {
	original := New(CodeDataMissing, "no pins")
	wrapped := Wrap(original, "processor.load", "load failed")

	if wrapped.Code != CodeDataMissing {
		t.Errorf("expected code to be preserved as %s, got %s", CodeDataMissing, wrapped.Code)
	}
}

func TestWrapWithCode(t *testing.T) {
	original := fmt.Errorf("signal: killed")
	wrapped := WrapWithCode(original, CodeConversionTimeout, "convert.run", "converter exceeded deadline")

	if wrapped.Code != CodeConversionTimeout {
		t.Errorf("expected code=%s, got %s", CodeConversionTimeout, wrapped.Code)
	}
}

func TestWithField(t *testing.T) {
	err := New(CodeValidation, "invalid").
		WithField("field", "format").
		WithField("value", "xlsx")

	if err.Fields["field"] != "format" {
		t.Errorf("expected field='format', got %v", err.Fields["field"])
	}
	if err.Fields["value"] != "xlsx" {
		t.Errorf("expected value='xlsx', got %v", err.Fields["value"])
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("NotFound", func(t *testing.T) {
		err := NotFound("export job", "job_123")
		if err.Code != CodeNotFound {
			t.Errorf("expected code=%s, got %s", CodeNotFound, err.Code)
		}
		if err.Fields["resource"] != "export job" {
			t.Errorf("expected resource='export job', got %v", err.Fields["resource"])
		}
		if err.Fields["id"] != "job_123" {
			t.Errorf("expected id='job_123', got %v", err.Fields["id"])
		}
	})

	t.Run("DataMissing", func(t *testing.T) {
		err := DataMissing("contract pins", "ci_123")
		if err.Code != CodeDataMissing {
			t.Errorf("expected code=%s, got %s", CodeDataMissing, err.Code)
		}
		if err.Fields["what"] != "contract pins" {
			t.Errorf("expected what='contract pins', got %v", err.Fields["what"])
		}
	})

	t.Run("ValidationField", func(t *testing.T) {
		err := ValidationField("format", "must be docx, odt or pdf")
		if err.Code != CodeValidation {
			t.Errorf("expected code=%s, got %s", CodeValidation, err.Code)
		}
		if err.Fields["field"] != "format" {
			t.Errorf("expected field='format', got %v", err.Fields["field"])
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		err := Timeout("db query")
		if err.Code != CodeTimeout {
			t.Errorf("expected code=%s, got %s", CodeTimeout, err.Code)
		}
	})

	t.Run("Unavailable", func(t *testing.T) {
		err := Unavailable("renderer")
		if err.Code != CodeUnavailable {
			t.Errorf("expected code=%s, got %s", CodeUnavailable, err.Code)
		}
	})
}

func TestGetCode(t *testing.T) {
	t.Run("from coded error", func(t *testing.T) {
		err := New(CodeNotFound, "not found")
		if GetCode(err) != CodeNotFound {
			t.Errorf("expected code=%s, got %s", CodeNotFound, GetCode(err))
		}
	})

	t.Run("from standard error", func(t *testing.T) {
		err := fmt.Errorf("standard error")
		if GetCode(err) != CodeInternal {
			t.Errorf("expected code=%s, got %s", CodeInternal, GetCode(err))
		}
	})

	t.Run("from wrapped error", func(t *testing.T) {
		original := New(CodeValidation, "invalid")
		wrapped := Wrap(original, "handler", "wrapped")
		if GetCode(wrapped) != CodeValidation {
			t.Errorf("expected code=%s, got %s", CodeValidation, GetCode(wrapped))
		}
	})
}

func TestIsCode(t *testing.T) {
	err := New(CodeNotFound, "not found")

	if !IsCode(err, CodeNotFound) {
		t.Error("expected IsCode to return true")
	}
	if IsCode(err, CodeValidation) {
		t.Error("expected IsCode to return false")
	}
}

func TestIsDataMissing(t *testing.T) {
	missing := New(CodeDataMissing, "no pins")
	other := New(CodeValidation, "invalid")

	if !IsDataMissing(missing) {
		t.Error("expected IsDataMissing to return true")
	}
	if IsDataMissing(other) {
		t.Error("expected IsDataMissing to return false")
	}
}

func TestIsConversion(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{CodeConversionTimeout, true},
		{CodeConversionFailed, true},
		{CodeEmptyOutput, true},
		{CodeInternal, false},
		{CodeValidation, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := IsConversion(New(tt.code, "x")); got != tt.want {
				t.Errorf("IsConversion(%s)=%v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestStackTrace(t *testing.T) {
	err := New(CodeInternal, "test error")

	stack := err.StackTrace()
	if stack == "" {
		t.Error("expected non-empty stack trace")
	}

	// Should contain file references
	if !strings.Contains(stack, ".go:") {
		t.Errorf("expected stack trace to contain file references, got: %s", stack)
	}
}

func TestErrorIs(t *testing.T) {
	err1 := New(CodeNotFound, "error 1")
	err2 := New(CodeNotFound, "error 2")
	err3 := New(CodeValidation, "error 3")

	if !errors.Is(err1, err2) {
		t.Error("expected errors with same code to match with Is")
	}
	if errors.Is(err1, err3) {
		t.Error("expected errors with different codes to not match")
	}
}

func TestAsAndIs(t *testing.T) {
	original := New(CodeNotFound, "not found")
	wrapped := fmt.Errorf("wrapped: %w", original)

	var target *Error
	if !As(wrapped, &target) {
		t.Error("expected As to find Error in chain")
	}
	if target.Code != CodeNotFound {
		t.Errorf("expected code=%s, got %s", CodeNotFound, target.Code)
	}

	if !Is(wrapped, original) {
		t.Error("expected Is to match original error")
	}
}
