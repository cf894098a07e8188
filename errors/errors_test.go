package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/caio-sobreiro/dicomarchive/dicom"
)

func TestDIMSEError(t *testing.T) {
	tests := []struct {
		name      string
		status    uint16
		isSuccess bool
		isPending bool
		isWarning bool
		isFailure bool
	}{
		{"Success", 0x0000, true, false, false, false},
		{"Pending", 0xFF00, false, true, false, false},
		{"PendingWithWarning", 0xFF01, false, true, false, false},
		{"Warning", 0x0107, false, false, true, false},
		{"Coercion", 0xB000, false, false, true, false},
		{"Failure", 0xC000, false, false, false, true},
		{"OutOfResources", 0xA700, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDIMSEError("C-STORE", tt.status, "test error")

			if err.IsSuccess() != tt.isSuccess {
				t.Errorf("IsSuccess() = %v, want %v", err.IsSuccess(), tt.isSuccess)
			}
			if err.IsPending() != tt.isPending {
				t.Errorf("IsPending() = %v, want %v", err.IsPending(), tt.isPending)
			}
			if err.IsWarning() != tt.isWarning {
				t.Errorf("IsWarning() = %v, want %v", err.IsWarning(), tt.isWarning)
			}
			if err.IsFailure() != tt.isFailure {
				t.Errorf("IsFailure() = %v, want %v", err.IsFailure(), tt.isFailure)
			}
		})
	}
}

func TestResourceError(t *testing.T) {
	inner := errors.New("no space left on device")
	err := fmt.Errorf("commit: %w", NewResourceError("rename", inner))

	if !IsResource(err) {
		t.Error("IsResource() = false, want true")
	}
	if !errors.Is(err, inner) {
		t.Error("ResourceError should unwrap to the cause")
	}
}

func TestIntegrityErrorIsResource(t *testing.T) {
	err := NewIntegrityError("2024/01/01/abc", errors.New("database is locked"))

	if !IsResource(err) {
		t.Error("IsResource() = false, want true")
	}
	if !strings.Contains(err.Error(), "2024/01/01/abc") {
		t.Errorf("Error() = %q, want path in message", err.Error())
	}
}

func TestMalformedError(t *testing.T) {
	err := NewMalformedError("missing required attributes", nil, dicom.TagStudyInstanceUID, dicom.TagSOPInstanceUID)

	msg := err.Error()
	for _, want := range []string{"StudyInstanceUID", "SOPInstanceUID"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, want it to name %s", msg, want)
		}
	}
	if !IsMalformed(fmt.Errorf("ingest: %w", err)) {
		t.Error("IsMalformed() = false, want true")
	}
	if IsResource(err) {
		t.Error("malformed input is not a resource failure")
	}
}

func TestDuplicateError(t *testing.T) {
	err := NewDuplicateError("1.2.3")

	if !IsDuplicate(err) {
		t.Error("IsDuplicate() = false, want true")
	}
	if !strings.Contains(err.Error(), "1.2.3") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestSessionErrors(t *testing.T) {
	wrapped := fmt.Errorf("next: %w", ErrSessionNotStarted)
	if !errors.Is(wrapped, ErrSessionNotStarted) {
		t.Error("errors.Is failed for ErrSessionNotStarted")
	}
	if errors.Is(wrapped, ErrSessionClosed) {
		t.Error("ErrSessionNotStarted should not match ErrSessionClosed")
	}
}
