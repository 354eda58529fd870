package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pitwall-ai/pitwall"
)

// ValidationError reports a model response that failed JSON Schema
// validation or decoding. It is retryable: callers append the issues to the
// prompt and ask again.
type ValidationError struct {
	Issues []string
	Raw    string
}

func (e *ValidationError) Error() string {
	return "model response violates schema: " + strings.Join(e.Issues, "; ")
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Structured runs a schema-constrained completion and decodes the result
// into T, retrying up to retries extra times with the violation appended to
// the prompt. Transport-level errors abort immediately; only schema and
// decode failures are retried. On exhaustion the last validation error is
// returned so the caller can apply its stage fallback.
func Structured[T any](ctx context.Context, model pitwall.LanguageModel, prompt string, history []pitwall.Message, schema string, retries int) (T, error) {
	var out T
	var lastErr error

	attemptPrompt := prompt
	for attempt := 0; attempt <= retries; attempt++ {
		raw, err := model.CompleteStructured(ctx, attemptPrompt, history, schema)
		if err != nil {
			if !IsValidationError(err) {
				return out, err
			}
			lastErr = err
			attemptPrompt = appendViolation(prompt, err)
			continue
		}

		if err := json.Unmarshal(raw, &out); err != nil {
			lastErr = &ValidationError{
				Issues: []string{fmt.Sprintf("response did not decode: %v", err)},
				Raw:    string(raw),
			}
			attemptPrompt = appendViolation(prompt, lastErr)
			continue
		}

		return out, nil
	}

	return out, lastErr
}

// appendViolation rebuilds the prompt with the previous attempt's violation
// so the model can correct itself instead of repeating the mistake.
func appendViolation(prompt string, err error) string {
	return prompt + "\n\nYour previous response was invalid: " + err.Error() +
		"\nRespond again with a single JSON object that satisfies the schema exactly."
}

// ExtractJSON strips markdown code fences and surrounding prose from a
// model response, returning the first top-level JSON object or array.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)

	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+len("```"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}

	// No fences: trim to the outermost braces or brackets.
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var closer byte = '}'
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}
