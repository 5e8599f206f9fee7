package server

import "github.com/microcosm-cc/bluemonday"

// Validation error codes surfaced on the edit form.
const (
	ErrCodeMissingName        = "missing_name"
	ErrCodeMissingDescription = "missing_description"
	ErrCodeMissingCallback    = "missing_callback"
)

// ValidationError describes a rejected form submission. Validation stops
// at the first failing field, so exactly one error is surfaced per call.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// fieldPolicy strips unsafe markup from user-supplied display fields.
var fieldPolicy = bluemonday.UGCPolicy()

// ValidateConsumerParams checks submitted consumer fields in order: name,
// then description, then callback. Name and description are sanitized for
// later safe display; the callback is returned byte-for-byte. Whether the
// callback is a well-formed URL is deliberately not checked.
func ValidateConsumerParams(name, description, callback string) (ConsumerParams, *ValidationError) {
	if name == "" {
		return ConsumerParams{}, &ValidationError{Code: ErrCodeMissingName, Message: "Consumer name is required"}
	}
	if description == "" {
		return ConsumerParams{}, &ValidationError{Code: ErrCodeMissingDescription, Message: "Consumer description is required"}
	}
	if callback == "" {
		return ConsumerParams{}, &ValidationError{Code: ErrCodeMissingCallback, Message: "Consumer callback is required and must be a valid URL."}
	}

	return ConsumerParams{
		Name:        fieldPolicy.Sanitize(name),
		Description: fieldPolicy.Sanitize(description),
		Callback:    callback,
	}, nil
}
