package artifacts

import (
	"errors"
	"fmt"
)

// ReasonCode is the closed taxonomy of import and extraction failures.
// Control flow branches on the code, never on Detail text.
type ReasonCode string

const (
	ReasonImportUnsupportedType    ReasonCode = "IMPORT_UNSUPPORTED_TYPE"
	ReasonImportReadError          ReasonCode = "IMPORT_READ_ERROR"
	ReasonStorageWriteError        ReasonCode = "STORAGE_WRITE_ERROR"
	ReasonExtractUnsupportedType   ReasonCode = "EXTRACT_UNSUPPORTED_TYPE"
	ReasonExtractEncryptedDocument ReasonCode = "EXTRACT_ENCRYPTED_DOCUMENT"
	ReasonExtractPasswordRequired  ReasonCode = "EXTRACT_PASSWORD_REQUIRED"
	ReasonExtractParseError        ReasonCode = "EXTRACT_PARSE_ERROR"
	ReasonExtractEmptyContent      ReasonCode = "EXTRACT_EMPTY_CONTENT"
	ReasonExtractOCRRequired       ReasonCode = "EXTRACT_OCR_REQUIRED"
	ReasonExtractTranscribeFailed  ReasonCode = "EXTRACT_TRANSCRIBE_FAILED"
	ReasonExtractDependencyMissing ReasonCode = "EXTRACT_DEPENDENCY_MISSING"
)

// ReasonCodes lists every code in declaration order.
func ReasonCodes() []ReasonCode {
	return []ReasonCode{
		ReasonImportUnsupportedType,
		ReasonImportReadError,
		ReasonStorageWriteError,
		ReasonExtractUnsupportedType,
		ReasonExtractEncryptedDocument,
		ReasonExtractPasswordRequired,
		ReasonExtractParseError,
		ReasonExtractEmptyContent,
		ReasonExtractOCRRequired,
		ReasonExtractTranscribeFailed,
		ReasonExtractDependencyMissing,
	}
}

// Valid reports whether c belongs to the taxonomy.
func (c ReasonCode) Valid() bool {
	for _, known := range ReasonCodes() {
		if c == known {
			return true
		}
	}
	return false
}

// FailureRecord describes a failed extraction. Dependency is set only for
// EXTRACT_DEPENDENCY_MISSING. StatusCode is reserved for transport layers
// and is never set here.
type FailureRecord struct {
	ReasonCode ReasonCode `json:"reason_code"`
	Detail     string     `json:"detail"`
	Dependency string     `json:"dependency,omitempty"`
	StatusCode int        `json:"status_code,omitempty"`
}

// Failure builds a FailureRecord with a formatted detail.
func Failure(code ReasonCode, format string, args ...any) *FailureRecord {
	return &FailureRecord{ReasonCode: code, Detail: fmt.Sprintf(format, args...)}
}

// DependencyMissing builds an EXTRACT_DEPENDENCY_MISSING failure naming dep.
func DependencyMissing(dep string) *FailureRecord {
	return &FailureRecord{
		ReasonCode: ReasonExtractDependencyMissing,
		Detail:     dep + " not available in this build",
		Dependency: dep,
	}
}

func (f FailureRecord) String() string {
	if f.Dependency != "" {
		return fmt.Sprintf("%s: %s (dependency %s)", f.ReasonCode, f.Detail, f.Dependency)
	}
	return fmt.Sprintf("%s: %s", f.ReasonCode, f.Detail)
}

// Error is the error returned by import-time operations.
type Error struct {
	Code   ReasonCode
	Detail string
	Err    error
}

// NewError wraps err (which may be nil) with a reason code.
func NewError(code ReasonCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Failure converts the error into its value form.
func (e *Error) Failure() *FailureRecord {
	return &FailureRecord{ReasonCode: e.Code, Detail: e.Detail}
}

// ReasonOf extracts the reason code carried by err, if any.
func ReasonOf(err error) (ReasonCode, bool) {
	var artErr *Error
	if errors.As(err, &artErr) {
		return artErr.Code, true
	}
	return "", false
}

var (
	// ErrNotFound is returned by stores when a location holds no object.
	ErrNotFound = errors.New("artifacts: object not found")
	// ErrInvalidLocation is returned for locators a store did not issue.
	ErrInvalidLocation = errors.New("artifacts: invalid location")
)
