package pitwall

import "fmt"

// Error codes for specific failure types
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeSchemaViolation  = "SCHEMA_VIOLATION"
	ErrCodeToolNotFound     = "TOOL_NOT_FOUND"
	ErrCodeToolExecution    = "TOOL_EXECUTION_ERROR"
	ErrCodeUnderstanding    = "UNDERSTANDING_ERROR"
	ErrCodePlanGeneration   = "PLAN_GENERATION_ERROR"
	ErrCodeAggregation      = "AGGREGATION_ERROR"
	ErrCodeSynthesis        = "SYNTHESIS_ERROR"
	ErrCodeMemory           = "MEMORY_ERROR"
	ErrCodeModelUnavailable = "MODEL_UNAVAILABLE"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeCancelled        = "TURN_CANCELLED"
	ErrCodeTimeout          = "TURN_TIMEOUT"
	ErrCodeCache            = "CACHE_ERROR"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// PitwallError is a custom error type for pipeline specific errors.
type PitwallError struct {
	Code    string // A machine-readable error code (e.g., ErrCodeToolNotFound)
	Message string // A human-readable message
	Stage   string // The stage where the error occurred (e.g., "planning", "execution")
	Cause   error  // The underlying error, if any
}

// Error implements the error interface.
func (e *PitwallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *PitwallError) Unwrap() error {
	return e.Cause
}

// NewError creates a new PitwallError.
func NewError(code, stage, message string, cause error) *PitwallError {
	return &PitwallError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCode extracts the machine-readable code from an error chain, or
// ErrCodeInternal when the chain carries no PitwallError.
func ErrorCode(err error) string {
	var pe *PitwallError
	for e := err; e != nil; {
		if p, ok := e.(*PitwallError); ok {
			pe = p
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	if pe == nil {
		return ErrCodeInternal
	}
	return pe.Code
}

// Specific error constructors

func NewValidationError(stage, message string, cause error) *PitwallError {
	return NewError(ErrCodeValidation, stage, message, cause)
}

func NewSchemaViolationError(stage, message string, cause error) *PitwallError {
	return NewError(ErrCodeSchemaViolation, stage, message, cause)
}

func NewToolNotFoundError(stage, toolName string) *PitwallError {
	return NewError(ErrCodeToolNotFound, stage, fmt.Sprintf("tool '%s' not found", toolName), nil)
}

func NewToolExecutionError(stage, toolName string, cause error) *PitwallError {
	return NewError(ErrCodeToolExecution, stage, fmt.Sprintf("execution failed for tool '%s'", toolName), cause)
}

func NewUnderstandingError(cause error) *PitwallError {
	return NewError(ErrCodeUnderstanding, "understanding", "failed to understand query", cause)
}

func NewPlanGenerationError(cause error) *PitwallError {
	return NewError(ErrCodePlanGeneration, "planning", "failed to generate execution plan", cause)
}

func NewAggregationError(cause error) *PitwallError {
	return NewError(ErrCodeAggregation, "aggregation", "failed to aggregate tool results", cause)
}

func NewSynthesisError(cause error) *PitwallError {
	return NewError(ErrCodeSynthesis, "generation", "failed to synthesize final answer", cause)
}

func NewMemoryError(operation string, cause error) *PitwallError {
	return NewError(ErrCodeMemory, "memory", fmt.Sprintf("memory operation '%s' failed", operation), cause)
}

func NewModelUnavailableError(stage string, cause error) *PitwallError {
	return NewError(ErrCodeModelUnavailable, stage, "language model unavailable", cause)
}

func NewConfigurationError(message string, cause error) *PitwallError {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

func NewCancelledError(stage string, cause error) *PitwallError {
	msg := "turn cancelled"
	if cause != nil && cause.Error() != "" && cause.Error() != "context canceled" { // Add more detail if cause isn't just context.Canceled
		msg = fmt.Sprintf("turn cancelled: %v", cause)
	}
	return NewError(ErrCodeCancelled, stage, msg, cause)
}

func NewTimeoutError(stage string, cause error) *PitwallError {
	return NewError(ErrCodeTimeout, stage, "turn deadline exceeded", cause)
}

func NewCacheError(stage, operation string, cause error) *PitwallError {
	return NewError(ErrCodeCache, stage, fmt.Sprintf("cache operation '%s' failed", operation), cause)
}

func NewInternalError(stage, message string, cause error) *PitwallError {
	return NewError(ErrCodeInternal, stage, message, cause)
}
