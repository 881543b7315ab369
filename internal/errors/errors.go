// Package errors provides categorized errors for the annotation core.
//
// Errors are built fluently and keep the wrapped error reachable through
// Unwrap, so the standard errors.Is / errors.As helpers keep working:
//
//	err := errors.New(err).
//	    Component("persist").
//	    Category(errors.CategoryFileIO).
//	    Context("path", path).
//	    Build()
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"time"
)

// ErrorCategory groups errors by the kind of failure.
type ErrorCategory string

const (
	CategoryValidation  ErrorCategory = "validation"   // precondition violations (bad dims, bad geometry)
	CategoryFileIO      ErrorCategory = "file-io"      // read/write/remove failures
	CategoryFileParsing ErrorCategory = "file-parsing" // malformed label lines or mask files
	CategoryImageDecode ErrorCategory = "image-decode" // unreadable source images
	CategoryState       ErrorCategory = "state"        // operation not valid in current state
	CategoryNotFound    ErrorCategory = "not-found"
	CategoryCancelled   ErrorCategory = "cancellation"
	CategoryProcess     ErrorCategory = "command-execution"
	CategoryConfig      ErrorCategory = "configuration"
	CategoryGeneric     ErrorCategory = "generic"
)

// ComponentUnknown is used when no component was set.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with a component, a category and context values.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
}

// Error implements the error interface.
func (ee *EnhancedError) Error() string {
	if ee.Err == nil {
		return string(ee.Category)
	}
	return ee.Err.Error()
}

// Unwrap returns the wrapped error.
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError by category, otherwise defers to the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetContext returns a copy of the context map.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	out := make(map[string]any, len(ee.Context))
	maps.Copy(out, ee.Context)
	return out
}

// ErrorBuilder builds an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts building an error around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts building a formatted error.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the category.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds a context value.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build creates the EnhancedError.
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if ee.Component == "" {
		ee.Component = ComponentUnknown
	}
	if ee.Category == "" {
		ee.Category = CategoryGeneric
	}
	return ee
}

// ValidationError is shorthand for a validation-category error.
func ValidationError(component, format string, args ...any) *EnhancedError {
	return Newf(format, args...).Component(component).Category(CategoryValidation).Build()
}

// FileError wraps a filesystem error with the path it concerns.
func FileError(component string, err error, path string) *EnhancedError {
	return New(err).Component(component).Category(CategoryFileIO).Context("path", path).Build()
}

// IsCategory reports whether any EnhancedError in err's tree has the category.
// Joined errors are searched branch by branch.
func IsCategory(err error, category ErrorCategory) bool {
	if err == nil {
		return false
	}
	if ee, ok := err.(*EnhancedError); ok && ee.Category == category {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return IsCategory(u.Unwrap(), category)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if IsCategory(e, category) {
				return true
			}
		}
	}
	return false
}

// Is wraps the standard library errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As wraps the standard library errors.As.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join wraps the standard library errors.Join.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// NewStd creates a plain error, like the standard library errors.New.
func NewStd(text string) error {
	return stderrors.New(text)
}
