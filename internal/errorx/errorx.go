package errorx

import (
	"context"
	"errors"
	"net/http"
)

type ErrorCode int

const (
	Undefined_Err       ErrorCode = 1000
	ValidationRejection ErrorCode = 1001
	DecodeFailure       ErrorCode = 1002
	ModelUnavailable    ErrorCode = 2001
	InferenceFailure    ErrorCode = 2002
	Timeout             ErrorCode = 2003
)

// RejectionMessage is the only text callers see for a rejected upload.
const RejectionMessage = "The uploaded image does not appear to be a valid colonoscopy image. Please upload a colonoscopy frame."

type ErrorWithCode interface {
	Error() string
	Code() ErrorCode
}

type Error struct {
	code ErrorCode
	msg  string
	err  error
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Code() ErrorCode {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.err
}

func NewWithCode(code ErrorCode, msg string) *Error {
	return &Error{code: code, msg: msg}
}

func Wrap(code ErrorCode, msg string, err error) *Error {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &Error{code: code, msg: msg, err: err}
}

func NewRejection() error {
	return NewWithCode(ValidationRejection, RejectionMessage)
}

func NewDecodeFailure(err error) error {
	return Wrap(DecodeFailure, "failed to decode image", err)
}

func NewModelUnavailable(msg string) error {
	return NewWithCode(ModelUnavailable, msg)
}

func NewInferenceFailure(err error) error {
	return Wrap(InferenceFailure, "inference failed", err)
}

// FromContext converts a cancelled or expired context into a coded error.
func FromContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(Timeout, "processing timed out", err)
	}
	return Wrap(InferenceFailure, "processing cancelled", err)
}

func CodeOf(err error) ErrorCode {
	var withCode ErrorWithCode
	if errors.As(err, &withCode) {
		return withCode.Code()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return Undefined_Err
}

func IsRejection(err error) bool {
	c := CodeOf(err)
	return c == ValidationRejection || c == DecodeFailure
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ValidationRejection, DecodeFailure:
		return http.StatusBadRequest
	case ModelUnavailable:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
