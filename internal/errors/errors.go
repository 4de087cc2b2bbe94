package errors

import (
	"fmt"
	"strings"
)

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Request errors

// ErrValidation reports bad or missing client input.
type ErrValidation struct {
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Message
}

// ErrConfiguration reports a process-wide setting that an operation needs but
// that was never provided.
type ErrConfiguration struct {
	Missing []string
}

func (e *ErrConfiguration) Error() string {
	if len(e.Missing) == 0 {
		return "missing configuration"
	}
	return fmt.Sprintf("missing configuration: %s", strings.Join(e.Missing, ", "))
}

// ErrDependencyMissing reports a required local asset that is absent.
type ErrDependencyMissing struct {
	Asset string
	Path  string
}

func (e *ErrDependencyMissing) Error() string {
	return fmt.Sprintf("%s missing", e.Asset)
}

// Encoder errors

type ErrEncode struct {
	Output string
	Stderr string
	Err    error
}

func (e *ErrEncode) Error() string {
	msg := fmt.Sprintf("encode %s failed: %v", e.Output, e.Err)
	if e.Stderr != "" {
		msg += "\n" + e.Stderr
	}
	return msg
}

func (e *ErrEncode) Unwrap() error {
	return e.Err
}

// Upstream errors

// ErrUpstream reports a failed call to the identity provider, or a reply that
// could not be decoded.
type ErrUpstream struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *ErrUpstream) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s failed (status %d): %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s failed: %v", e.Operation, e.Err)
}

func (e *ErrUpstream) Unwrap() error {
	return e.Err
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}
