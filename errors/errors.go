// Package errors provides the archive's error taxonomy
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caio-sobreiro/dicomarchive/dicom"
)

// Common errors
var (
	ErrSessionNotStarted = errors.New("archive: query session used before Find")
	ErrSessionClosed     = errors.New("archive: query session closed")
	ErrSessionActive     = errors.New("archive: query session already executing")
	ErrUnknownLevel      = errors.New("archive: unknown query/retrieve level")
	ErrNotFound          = errors.New("archive: not found")
)

// ResourceError reports a transient resource failure: a full file system, a
// temp file that cannot be created, an unavailable database.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("out of resources during %s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new resource error
func NewResourceError(op string, err error) *ResourceError {
	return &ResourceError{Op: op, Err: err}
}

// MalformedError reports input the archive cannot understand. Tags names the
// offending attributes when they are known.
type MalformedError struct {
	Tags []dicom.Tag
	Msg  string
	Err  error
}

func (e *MalformedError) Error() string {
	var b strings.Builder
	b.WriteString("cannot understand dataset: ")
	b.WriteString(e.Msg)
	if len(e.Tags) > 0 {
		names := make([]string, len(e.Tags))
		for i, t := range e.Tags {
			names[i] = dicom.Keyword(t)
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(names, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// NewMalformedError creates a new malformed-input error
func NewMalformedError(msg string, err error, tags ...dicom.Tag) *MalformedError {
	return &MalformedError{Tags: tags, Msg: msg, Err: err}
}

// DuplicateError is returned when an instance is re-sent under the REJECT
// duplicate policy.
type DuplicateError struct {
	SOPInstanceUID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate SOP instance %s rejected", e.SOPInstanceUID)
}

// NewDuplicateError creates a new duplicate error
func NewDuplicateError(sopInstanceUID string) *DuplicateError {
	return &DuplicateError{SOPInstanceUID: sopInstanceUID}
}

// IntegrityError reports a file that was moved into place but could not be
// registered. The file at Path is left for out-of-band cleanup.
type IntegrityError struct {
	Path string
	Err  error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("orphaned file %s: %v", e.Path, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// NewIntegrityError creates a new integrity error
func NewIntegrityError(path string, err error) *IntegrityError {
	return &IntegrityError{Path: path, Err: err}
}

// IsResource reports whether err should be surfaced as an out-of-resources
// condition. Integrity failures count as resource failures.
func IsResource(err error) bool {
	var re *ResourceError
	var ie *IntegrityError
	return errors.As(err, &re) || errors.As(err, &ie)
}

// IsMalformed reports whether err wraps a MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}

// IsDuplicate reports whether err wraps a DuplicateError.
func IsDuplicate(err error) bool {
	var de *DuplicateError
	return errors.As(err, &de)
}

// DIMSEError represents a DIMSE operation error with status code
type DIMSEError struct {
	Status    uint16
	Operation string
	Msg       string
}

func (e *DIMSEError) Error() string {
	return fmt.Sprintf("DIMSE %s failed: %s (status: 0x%04X)", e.Operation, e.Msg, e.Status)
}

// NewDIMSEError creates a new DIMSE error
func NewDIMSEError(operation string, status uint16, msg string) *DIMSEError {
	return &DIMSEError{
		Operation: operation,
		Status:    status,
		Msg:       msg,
	}
}

// IsSuccess returns true if the DIMSE status indicates success
func (e *DIMSEError) IsSuccess() bool {
	return e.Status == 0x0000
}

// IsPending returns true if the DIMSE status indicates pending
func (e *DIMSEError) IsPending() bool {
	return e.Status == 0xFF00 || e.Status == 0xFF01
}

// IsWarning returns true if the DIMSE status indicates a warning
func (e *DIMSEError) IsWarning() bool {
	return (e.Status&0xFF00) == 0x0100 || (e.Status&0xF000) == 0xB000
}

// IsFailure returns true if the DIMSE status indicates failure
func (e *DIMSEError) IsFailure() bool {
	return (e.Status&0xF000) == 0xC000 || (e.Status&0xF000) == 0xA000
}
