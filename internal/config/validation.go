package config

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Check appends err when it is a ValidationError and ignores nil.
func (ve *ValidationErrors) Check(err error) {
	if err == nil {
		return
	}
	if v, ok := err.(ValidationError); ok {
		*ve = append(*ve, v)
		return
	}
	ve.Add("", err.Error())
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value, mode string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("is required in %s mode", mode),
		}
	}
	return nil
}

// ValidateAbsent rejects a field that belongs to the other mode.
func ValidateAbsent(field string, set bool, mode string) error {
	if set {
		return ValidationError{
			Field:   field,
			Message: fmt.Sprintf("is not allowed in %s mode", mode),
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateHTTPURL checks that value is an absolute http(s) URL with a host.
func ValidateHTTPURL(field, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "must be an absolute http or https URL",
		}
	}
	return nil
}

// ValidateRelativePath checks that value stays inside the directory it is
// joined to. Both slash styles are accepted since configuration paths are
// often authored on Windows.
func ValidateRelativePath(field, value string) error {
	normalized := strings.ReplaceAll(value, `\`, "/")
	if filepath.IsAbs(value) || path.IsAbs(normalized) || filepath.VolumeName(value) != "" {
		return ValidationError{Field: field, Value: value, Message: "must be relative to the source root"}
	}
	cleaned := path.Clean(normalized)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return ValidationError{Field: field, Value: value, Message: "must not escape the source root"}
	}
	return nil
}

// ValidateDurations parses each entry of values as a positive Go duration.
func ValidateDurations(field string, values []string) ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(values))
	for i, raw := range values {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil || d < 0 {
			return nil, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Value:   raw,
				Message: "must be a non-negative duration such as \"15s\"",
			}
		}
		out = append(out, d)
	}
	return out, nil
}
