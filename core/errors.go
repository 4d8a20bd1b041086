package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// ConfigurationError reports missing or malformed configuration detected at startup.
type ConfigurationError struct {
	Problems []string
}

func (err *ConfigurationError) add(env, key, problem string) {
	envKey := env + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	err.Problems = append(err.Problems, fmt.Sprintf("%s %s", envKey, problem))
}

func (err ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(err.Problems, "; ")
}

func IsConfigurationError(err error) bool {
	_, ok := errors.Cause(err).(*ConfigurationError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
