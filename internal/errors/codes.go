// Package errors provides structured error handling for markstash.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (SQLite, index files)
//   - 3XX: Network errors (content sources, embedding provider)
//   - 4XX: Validation errors (bad input, unsupported content)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates metadata store and index errors.
	CategoryStorage Category = "STORAGE"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStorageFailure = "ERR_201_STORAGE_FAILURE"
	ErrCodeCorruptIndex   = "ERR_202_CORRUPT_INDEX"
	ErrCodeNotFound       = "ERR_203_NOT_FOUND"

	// Network errors (300-399)
	ErrCodeSourceUnreachable  = "ERR_301_SOURCE_UNREACHABLE"
	ErrCodeEmbeddingTransient = "ERR_302_EMBEDDING_TRANSIENT"
	ErrCodeEmbeddingQuota     = "ERR_303_EMBEDDING_QUOTA"

	// Validation errors (400-499)
	ErrCodeInvalidInput       = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch  = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeUnsupportedContent = "ERR_403_UNSUPPORTED_CONTENT"
	ErrCodeEmptyContent       = "ERR_404_EMPTY_CONTENT"

	// Internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeEmbeddingProvider = "ERR_502_EMBEDDING_PROVIDER"
	ErrCodeSearchFailed      = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed       = "ERR_504_INDEX_FAILED"
	ErrCodeRetriesExhausted  = "ERR_505_RETRIES_EXHAUSTED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "301" from "ERR_301_SOURCE_UNREACHABLE")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	if code == ErrCodeCorruptIndex {
		return SeverityFatal
	}

	// Retryable errors get warning severity: the pipeline recovers from them.
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Unreachable sources, transient/quota embedding failures, and empty
// extraction results (the page may populate later) are retried by the
// orchestrator with backoff; everything else is terminal.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeSourceUnreachable, ErrCodeEmbeddingTransient, ErrCodeEmbeddingQuota, ErrCodeEmptyContent:
		return true
	default:
		return false
	}
}
