package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/standardbeagle/grtags/internal/types"
)

// Error types for the tag indexer
type ErrorType string

const (
	// Indexing errors
	ErrorTypeIndexing ErrorType = "indexing"
	ErrorTypeParse    ErrorType = "parse"
	ErrorTypeScan     ErrorType = "scan"

	// Storage errors
	ErrorTypeStore ErrorType = "store"

	// File errors
	ErrorTypeFileNotFound ErrorType = "file_not_found"
	ErrorTypeFileTooLarge ErrorType = "file_too_large"
	ErrorTypePermission   ErrorType = "permission"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// IndexingError represents an error during the indexing process
type IndexingError struct {
	Type        ErrorType
	FileID      types.FileID
	FilePath    string
	Operation   string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// NewIndexingError creates a new indexing error with context
func NewIndexingError(op string, err error) *IndexingError {
	return &IndexingError{
		Type:       ErrorTypeIndexing,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// NewScanError creates an indexing error for a failed directory scan
func NewScanError(root string, err error) *IndexingError {
	e := NewIndexingError("scan", err)
	e.Type = ErrorTypeScan
	e.FilePath = root
	return e
}

// WithFile adds file information to the error
func (e *IndexingError) WithFile(fileID types.FileID, path string) *IndexingError {
	e.FileID = fileID
	e.FilePath = path
	return e
}

// WithRecoverable marks the error as recoverable
func (e *IndexingError) WithRecoverable(recoverable bool) *IndexingError {
	e.Recoverable = recoverable
	return e
}

// Error implements the error interface
func (e *IndexingError) Error() string {
	if e.FilePath != "" {
		return fmt.Sprintf("%s %s failed for %s: %v", e.Type, e.Operation, e.FilePath, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Type, e.Operation, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *IndexingError) Unwrap() error {
	return e.Underlying
}

// IsRecoverable checks if the error can be retried
func (e *IndexingError) IsRecoverable() bool {
	return e.Recoverable
}

// ParseError represents a parsing error
type ParseError struct {
	Type       ErrorType
	FileID     types.FileID
	FilePath   string
	Language   string
	Underlying error
	Timestamp  time.Time
}

// NewParseError creates a new parse error
func NewParseError(fileID types.FileID, path, language string, err error) *ParseError {
	return &ParseError{
		Type:       ErrorTypeParse,
		FileID:     fileID,
		FilePath:   path,
		Language:   language,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Language != "" {
		return fmt.Sprintf("parse error in %s (%s): %v", e.FilePath, e.Language, e.Underlying)
	}
	return fmt.Sprintf("parse error in %s: %v", e.FilePath, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ParseError) Unwrap() error {
	return e.Underlying
}

// StoreError represents a failure of the persistent store
type StoreError struct {
	Type       ErrorType
	Namespace  string
	Operation  string
	Key        string
	Underlying error
	Timestamp  time.Time
}

// NewStoreError creates a new store error
func NewStoreError(namespace, op, key string, err error) *StoreError {
	return &StoreError{
		Type:       ErrorTypeStore,
		Namespace:  namespace,
		Operation:  op,
		Key:        key,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s %s failed for %q: %v", e.Namespace, e.Operation, e.Key, e.Underlying)
	}
	return fmt.Sprintf("store %s %s failed: %v", e.Namespace, e.Operation, e.Underlying)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Underlying
}

// FileError represents a file-related error
type FileError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewFileError creates a new file error
func NewFileError(op, path string, err error) *FileError {
	errorType := ErrorTypeFileNotFound
	if isPermissionError(err) {
		errorType = ErrorTypePermission
	}

	return &FileError{
		Type:       errorType,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// isPermissionError checks if the error is a permission error
func isPermissionError(err error) bool {
	if errors.Is(err, fs.ErrPermission) {
		return true
	}
	errStr := err.Error()
	return errStr == "permission denied" || errStr == "access denied"
}

// Error implements the error interface
func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *FileError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// ErrOrNil returns nil when no errors were collected
func (e *MultiError) ErrOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
