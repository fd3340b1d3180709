package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrUnauthorized is returned for 401 and 403 responses. The caller must
	// send the user back to the login screen.
	ErrUnauthorized = errors.New("api: unauthorized")

	// ErrNetworkUnavailable means no response was received at all.
	ErrNetworkUnavailable = errors.New("api: network unavailable")
)

// RequestError is any other non-2xx response.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed: %s", http.StatusText(e.Status))
}

// FieldError is one failed form constraint.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}

// ValidationError collects every failed constraint of a form. No request is
// issued when one is returned.
type ValidationError struct {
	errs *multierror.Error
}

func (e *ValidationError) Error() string {
	return e.errs.Error()
}

func (e *ValidationError) Unwrap() []error {
	return e.errs.WrappedErrors()
}

// Fields returns the failed constraints in the order they were checked.
func (e *ValidationError) Fields() []*FieldError {
	var out []*FieldError
	for _, err := range e.errs.WrappedErrors() {
		var fe *FieldError
		if errors.As(err, &fe) {
			out = append(out, fe)
		}
	}
	return out
}

// Field returns the message for a field, or "".
func (e *ValidationError) Field(name string) string {
	for _, fe := range e.Fields() {
		if fe.Field == name {
			return fe.Message
		}
	}
	return ""
}

type validator struct {
	errs *multierror.Error
}

func (v *validator) fail(field, message string) {
	v.errs = multierror.Append(v.errs, &FieldError{Field: field, Message: message})
}

func (v *validator) check(ok bool, field, message string) {
	if !ok {
		v.fail(field, message)
	}
}

func (v *validator) err() error {
	if v.errs.ErrorOrNil() == nil {
		return nil
	}
	v.errs.ErrorFormat = func(errs []error) string {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return &ValidationError{errs: v.errs}
}

// Message is the text a screen shows for err.
func Message(err error) string {
	var reqErr *RequestError
	var valErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please log in again."
	case errors.Is(err, ErrNetworkUnavailable):
		return "Cannot reach the server. Check your connection."
	case errors.As(err, &valErr):
		return valErr.Error()
	case errors.As(err, &reqErr):
		return reqErr.Error()
	default:
		return "Something went wrong"
	}
}
