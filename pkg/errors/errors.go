// Package errors defines the error kinds returned by the reusable cloud clients.
//
// Every client logs a failure where it is detected and returns one of the
// types below. Callers match them with the standard library:
//
//	var integrity rcerrors.IntegrityError
//	if errors.As(err, &integrity) {
//	    // payload was corrupted in transit or at rest
//	}
//
// Unclassified failures from a vendor SDK are wrapped in ServiceError, which
// keeps the original error reachable through errors.Unwrap.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QueryExecutionError reports a warehouse job that finished with errors.
type QueryExecutionError struct {
	Query  string
	Errors []string
	Err    error
}

func (e QueryExecutionError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("query execution failed: %s", strings.Join(e.Errors, "; "))
	}
	if e.Err != nil {
		return fmt.Sprintf("query execution failed: %v", e.Err)
	}
	return "query execution failed"
}

func (e QueryExecutionError) Unwrap() error {
	return e.Err
}

// LoadError reports a failed bulk load into a warehouse table.
type LoadError struct {
	Table string
	Err   error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Table, e.Err)
}

func (e LoadError) Unwrap() error {
	return e.Err
}

// ConfigLoadError reports a configuration file that is missing or not valid YAML.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e ConfigLoadError) Error() string {
	return fmt.Sprintf("failed to load config %s: %v", e.Path, e.Err)
}

func (e ConfigLoadError) Unwrap() error {
	return e.Err
}

// IntegrityError reports a secret payload whose checksum does not match the
// checksum recorded when the version was written.
type IntegrityError struct {
	Secret   string
	Version  string
	Expected *int64
	Actual   int64
}

func (e IntegrityError) Error() string {
	return fmt.Sprintf("data corruption detected for secret %s (version %s)", e.Secret, e.Version)
}

// DecodeError reports a secret payload that is not UTF-8 encoded JSON.
type DecodeError struct {
	Secret string
	Err    error
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("failed to decode secret %s: %v", e.Secret, e.Err)
}

func (e DecodeError) Unwrap() error {
	return e.Err
}

// InvalidReferenceError reports a resource name that cannot be parsed.
type InvalidReferenceError struct {
	Kind  string
	Value string
}

func (e InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid %s reference %q", e.Kind, e.Value)
}

// ServiceError wraps any unclassified failure from an external service.
type ServiceError struct {
	Component  string
	Operation  string
	Target     string
	Suggestion string
	Err        error
}

func (e ServiceError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Component, e.Operation)
	if e.Target != "" {
		msg += " " + e.Target
	}
	msg += " failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Suggestion != "" {
		msg += "\n  💡 Try: " + e.Suggestion
	}
	return msg
}

func (e ServiceError) Unwrap() error {
	return e.Err
}

// Service wraps err in a ServiceError with a suggestion derived from its status.
// It returns nil when err is nil.
func Service(component, operation, target string, err error) error {
	if err == nil {
		return nil
	}
	return ServiceError{
		Component:  component,
		Operation:  operation,
		Target:     target,
		Suggestion: suggestion(err),
		Err:        err,
	}
}

// IsNotFound reports whether err is a gRPC NotFound status or an HTTP 404.
func IsNotFound(err error) bool {
	return hasCode(err, codes.NotFound, http.StatusNotFound)
}

// IsAlreadyExists reports whether err is a gRPC AlreadyExists status or an HTTP 409.
func IsAlreadyExists(err error) bool {
	return hasCode(err, codes.AlreadyExists, http.StatusConflict)
}

func hasCode(err error, grpcCode codes.Code, httpCode int) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == httpCode
	}
	if s, ok := status.FromError(err); ok {
		return s.Code() == grpcCode
	}
	return false
}

func suggestion(err error) string {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusForbidden:
			return "Check IAM permissions for the service account"
		case http.StatusNotFound:
			return "Verify the resource name and project ID"
		case http.StatusConflict:
			return "The resource already exists"
		case http.StatusUnauthorized:
			return "Check authentication: set GOOGLE_APPLICATION_CREDENTIALS or run 'gcloud auth application-default login'"
		}
		return ""
	}

	s, ok := status.FromError(err)
	if !ok {
		return ""
	}
	switch s.Code() {
	case codes.PermissionDenied:
		return "Check IAM permissions for the service account"
	case codes.NotFound:
		return "Verify the resource name and project ID"
	case codes.AlreadyExists:
		return "The resource already exists"
	case codes.Unauthenticated:
		return "Check authentication: set GOOGLE_APPLICATION_CREDENTIALS or run 'gcloud auth application-default login'"
	case codes.InvalidArgument:
		return "Check the resource name format and version specification"
	case codes.ResourceExhausted:
		return "Request was throttled"
	}
	return ""
}
