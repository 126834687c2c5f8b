package apperrors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code identifies an error kind raised by the engine.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeInvalidState      Code = "INVALID_STATE"
	CodeIdentityMismatch  Code = "IDENTITY_MISMATCH"
	CodeGenerationFailure Code = "GENERATION_FAILURE"
	CodeDeliveryFailure   Code = "DELIVERY_FAILURE"
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// Metadata describes how a code is presented at the API boundary.
type Metadata struct {
	HTTPStatus    int
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeNotFound:          {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
	CodeInsufficientFunds: {HTTPStatus: http.StatusPaymentRequired, PublicMessage: "insufficient funds"},
	CodeInvalidState:      {HTTPStatus: http.StatusConflict, PublicMessage: "state transition disallowed"},
	CodeIdentityMismatch:  {HTTPStatus: http.StatusForbidden, PublicMessage: "account does not belong to caller"},
	CodeGenerationFailure: {HTTPStatus: http.StatusBadGateway, PublicMessage: "code generation failed"},
	CodeDeliveryFailure:   {HTTPStatus: http.StatusBadGateway, PublicMessage: "notification delivery failed"},
	CodeValidation:        {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed"},
	CodeInternal:          {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error"},
}

// MetadataFor returns the presentation metadata for code, defaulting to CodeInternal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a classified engine error.
type Error struct {
	code    Code
	message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the first *Error in err's chain.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of err, or CodeInternal for unclassified errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
