package image

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey = errors.New("API key is not set")
	ErrEmptyPrompt   = errors.New("prompt cannot be empty")
	ErrNoImage       = errors.New("no image provided")
)

// ConfigurationError is returned by New. It never carries the API key.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return "invalid input: " + e.Err.Error()
}

func (e *InputError) Unwrap() error { return e.Err }

// GenerationError reports a non-200 response. Body is the response text, unmodified.
type GenerationError struct {
	StatusCode int
	Body       string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate image: status %d: %s", e.StatusCode, e.Body)
}

type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return "failed to decode response: " + e.Err.Error()
}

func (e *DecodingError) Unwrap() error { return e.Err }

// IOError is returned together with a usable Result when the generated image could not be
// saved.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to save image to %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
