// Package errors provides the error taxonomy of the analysis pipeline and its
// conversion to BPMN errors for the Zeebe workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Terminal input conditions. The pipeline reports these as sentinel results.
	ErrCodeEmptyText  ErrorCode = "EMPTY_TEXT"
	ErrCodeNotMedical ErrorCode = "NOT_MEDICAL"

	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	ErrCodeConfiguration     ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeProvider          ErrorCode = "PROVIDER_ERROR"
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
	ErrCodeOCRFailed         ErrorCode = "OCR_FAILED"

	// Recovered inside the interaction checker, never surfaced.
	ErrCodeInteractionLookup        ErrorCode = "INTERACTION_LOOKUP_FAILED"
	ErrCodeInteractionSummarization ErrorCode = "INTERACTION_SUMMARIZATION_FAILED"

	ErrCodeLastResultStore ErrorCode = "LAST_RESULT_STORE_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// GenericFailureMessage is what users see for any unrecovered pipeline error.
const GenericFailureMessage = "Something went wrong analyzing your document. Please try again."

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func causeText(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

func NewEmptyTextError() *StandardError {
	return newError(ErrCodeEmptyText, "No text found in document.", "", nil)
}

func NewNotMedicalError(message string) *StandardError {
	if message == "" {
		message = "This does not appear to be a medical document."
	}
	return newError(ErrCodeNotMedical, message, "", nil)
}

func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid analysis input", details, nil)
}

// NewConfigurationError is returned when no LLM provider has a credential.
func NewConfigurationError(details string) *StandardError {
	return newError(ErrCodeConfiguration, "No LLM provider is configured", details, nil)
}

// NewProviderError records a non-2xx (or transport) failure from an LLM provider.
func NewProviderError(provider string, status int, body string, cause error) *StandardError {
	details := fmt.Sprintf("%s API error (%d): %s", provider, status, body)
	if status == 0 && cause != nil {
		details = fmt.Sprintf("%s request failed: %v", provider, cause)
	}
	e := newError(ErrCodeProvider, "LLM provider call failed", details, cause)
	e.Metadata = map[string]interface{}{
		"provider": provider,
		"status":   status,
		"body":     body,
	}
	return e
}

func NewMalformedResponseError(provider string, cause error) *StandardError {
	e := newError(ErrCodeMalformedResponse, "LLM returned unparseable content", causeText(cause), cause)
	e.Metadata = map[string]interface{}{"provider": provider}
	return e
}

func NewOCRFailedError(cause error) *StandardError {
	return newError(ErrCodeOCRFailed, "Text extraction failed", causeText(cause), cause)
}

func NewInteractionLookupError(drug string, cause error) *StandardError {
	e := newError(ErrCodeInteractionLookup, "Drug label lookup failed", causeText(cause), cause)
	e.Metadata = map[string]interface{}{"drug": drug}
	return e
}

func NewInteractionSummarizationError(drug string, cause error) *StandardError {
	e := newError(ErrCodeInteractionSummarization, "Interaction summary failed", causeText(cause), cause)
	e.Metadata = map[string]interface{}{"drug": drug}
	return e
}

func NewLastResultStoreError(op string, cause error) *StandardError {
	return newError(ErrCodeLastResultStore, "Last result store "+op+" failed", causeText(cause), cause)
}

// ==========================
// 4. Inspection helpers
// ==========================

// CodeOf returns the code of the first StandardError in err's chain, or
// ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// ==========================
// 5. Error Conversion to BPMN
// ==========================

// IsBusinessError reports codes that describe the document rather than a
// technical failure. Workers throw these as BPMN errors.
func IsBusinessError(code ErrorCode) bool {
	switch code {
	case ErrCodeEmptyText, ErrCodeNotMedical, ErrCodeInvalidInput:
		return true
	}
	return false
}

// GetRetryCount returns the automatic retry budget for a code. The pipeline
// makes a single attempt per provider per call, so nothing is retried.
func GetRetryCount(code ErrorCode) int {
	return 0
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   GetRetryCount(stdErr.Code),
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"category":          GetErrorCategory(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case IsBusinessError(code):
		return "DOCUMENT"
	case strings.Contains(codeStr, "INTERACTION"):
		return "INTERACTIONS"
	case code == ErrCodeProvider || code == ErrCodeMalformedResponse || code == ErrCodeConfiguration:
		return "LLM"
	case code == ErrCodeOCRFailed:
		return "OCR"
	case code == ErrCodeLastResultStore:
		return "STORAGE"
	default:
		return "UNKNOWN"
	}
}
