package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies federation errors; each kind maps to one HTTP status.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindUnauthorized ErrorKind = "unauthorized"
	KindBadRequest   ErrorKind = "bad_request"
	KindSignature    ErrorKind = "signature_verification"
	KindDelivery     ErrorKind = "delivery"
	KindFederation   ErrorKind = "federation"
)

func (k ErrorKind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBadRequest:
		return http.StatusBadRequest
	case KindSignature:
		return http.StatusForbidden
	case KindDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FederationError is the error type raised across the federation core.
type FederationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *FederationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FederationError) Unwrap() error {
	return e.Err
}

func (e *FederationError) Status() int {
	return e.Kind.Status()
}

func newError(kind ErrorKind, format string, args ...interface{}) *FederationError {
	var wrapped error
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			wrapped = err
		}
	}
	return &FederationError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: wrapped}
}

func NotFoundError(format string, args ...interface{}) *FederationError {
	return newError(KindNotFound, format, args...)
}

func UnauthorizedError(format string, args ...interface{}) *FederationError {
	return newError(KindUnauthorized, format, args...)
}

func BadRequestError(format string, args ...interface{}) *FederationError {
	return newError(KindBadRequest, format, args...)
}

func SignatureError(format string, args ...interface{}) *FederationError {
	return newError(KindSignature, format, args...)
}

func DeliveryError(format string, args ...interface{}) *FederationError {
	return newError(KindDelivery, format, args...)
}

func FederationErrorf(format string, args ...interface{}) *FederationError {
	return newError(KindFederation, format, args...)
}

// KindOf returns the error kind, or KindFederation for foreign errors.
func KindOf(err error) ErrorKind {
	var fe *FederationError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindFederation
}

// StatusOf maps any error to its HTTP response code.
func StatusOf(err error) int {
	var fe *FederationError
	if errors.As(err, &fe) {
		return fe.Status()
	}
	return http.StatusInternalServerError
}

// IsKind reports whether err is a FederationError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *FederationError
	return errors.As(err, &fe) && fe.Kind == kind
}
