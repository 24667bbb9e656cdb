package errors

import (
	"errors"
	"fmt"
)

// Category groups errors by who is expected to act on them.
type Category string

const (
	// CategoryConfiguration covers impossible or malformed configuration. Never retried.
	CategoryConfiguration Category = "configuration"
	// CategoryExecution covers failures raised by a node body.
	CategoryExecution Category = "execution"
	// CategoryResource covers oversized allocations and buffer/dimension mismatches.
	CategoryResource Category = "resource"
	// CategoryContract covers programming-contract violations.
	CategoryContract Category = "contract"
	// CategoryUnknown is returned for errors that carry no category.
	CategoryUnknown Category = "unknown"
)

var (
	// ErrMissingSession indicates that an empty session id was supplied
	ErrMissingSession = errors.New("session id is required")

	// ErrWorkerNotFound indicates that no worker is registered for an executor id in the session
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrDuplicateWorker indicates that an executor id is already registered in the session
	ErrDuplicateWorker = errors.New("duplicate worker")

	// ErrUnknownVariant indicates that a multi-chain variant id does not match any declared variant
	ErrUnknownVariant = errors.New("unknown variant")

	// ErrInvalidSettingsDocument indicates a malformed or mistyped settings document
	ErrInvalidSettingsDocument = errors.New("invalid settings document")

	// ErrInvalidSpecification indicates a specification that failed load-time validation
	ErrInvalidSpecification = errors.New("invalid specification")

	// ErrAmbiguousVisibleOutput indicates that the visible output port cannot be chosen by default
	ErrAmbiguousVisibleOutput = errors.New("ambiguous visible output port")

	// ErrNoSettingsBlock indicates that settings were bound to a chain without a settings block
	ErrNoSettingsBlock = errors.New("chain has no settings block")

	// ErrExecutionFailed indicates that a node body failed
	ErrExecutionFailed = errors.New("execution failed")

	// ErrReleased indicates a second release of a worker lease
	ErrReleased = errors.New("worker lease already released")
)

var categories = map[error]Category{
	ErrMissingSession:          CategoryConfiguration,
	ErrWorkerNotFound:          CategoryConfiguration,
	ErrDuplicateWorker:         CategoryConfiguration,
	ErrUnknownVariant:          CategoryConfiguration,
	ErrInvalidSettingsDocument: CategoryConfiguration,
	ErrInvalidSpecification:    CategoryConfiguration,
	ErrAmbiguousVisibleOutput:  CategoryConfiguration,
	ErrNoSettingsBlock:         CategoryContract,
	ErrReleased:                CategoryContract,
	ErrExecutionFailed:         CategoryExecution,
}

// Error represents a structured engine error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Category classifies the error for callers deciding how to react
	Category Category

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new engine error
func NewError(code string, category Category, message string, err error) *Error {
	return &Error{
		Code:     code,
		Category: category,
		Message:  message,
		Err:      err,
	}
}

// Configuration wraps a sentinel with a formatted message in the configuration category.
func Configuration(sentinel error, format string, args ...any) error {
	return NewError(codeOf(sentinel), CategoryConfiguration, fmt.Sprintf(format, args...), sentinel)
}

// Contract wraps a sentinel with a formatted message in the contract category.
func Contract(sentinel error, format string, args ...any) error {
	return NewError(codeOf(sentinel), CategoryContract, fmt.Sprintf(format, args...), sentinel)
}

// RegisterCategory attaches a category to a sentinel declared in another package.
// It must be called from package init only.
func RegisterCategory(sentinel error, category Category) {
	categories[sentinel] = category
}

// CategoryOf returns the category of err, looking through wrapped errors.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Category != "" {
		return e.Category
	}
	for sentinel, category := range categories {
		if errors.Is(err, sentinel) {
			return category
		}
	}
	return CategoryUnknown
}

// IsConfiguration reports whether err must be fixed by changing configuration.
func IsConfiguration(err error) bool {
	return CategoryOf(err) == CategoryConfiguration
}

// IsResource reports whether err is an oversized allocation or dimension mismatch.
func IsResource(err error) bool {
	return CategoryOf(err) == CategoryResource
}

func codeOf(sentinel error) string {
	switch sentinel {
	case ErrMissingSession:
		return "MISSING_SESSION"
	case ErrWorkerNotFound:
		return "WORKER_NOT_FOUND"
	case ErrDuplicateWorker:
		return "DUPLICATE_WORKER"
	case ErrUnknownVariant:
		return "UNKNOWN_VARIANT"
	case ErrInvalidSettingsDocument:
		return "INVALID_SETTINGS_DOCUMENT"
	case ErrInvalidSpecification:
		return "INVALID_SPECIFICATION"
	case ErrAmbiguousVisibleOutput:
		return "AMBIGUOUS_VISIBLE_OUTPUT"
	case ErrNoSettingsBlock:
		return "NO_SETTINGS_BLOCK"
	case ErrExecutionFailed:
		return "EXECUTION_FAILED"
	case ErrReleased:
		return "LEASE_RELEASED"
	default:
		return "UNKNOWN_ERROR"
	}
}
