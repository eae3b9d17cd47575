package errutil

import (
	"errors"
	"fmt"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) JSON() interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.Code,
			"message": e.messageWithErr(),
			"details": e.Details,
		},
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.messageWithErr())
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e BaseError) messageWithErr() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// As extracts a BaseError from err, falling back to an internal error.
func As(err error) BaseError {
	var be BaseError
	if errors.As(err, &be) {
		return be
	}
	return BaseError{Code: StatusInternal, Message: "internal error", Err: err}
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = details }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func NotFound(msg string, err error, options ...Option) error {
	return New(StatusNotFound, msg, append([]Option{WithErr(err)}, options...)...)
}

func UnprocessableEntity(msg string, err error, options ...Option) error {
	return New(StatusUnprocessableEntity, msg, append([]Option{WithErr(err)}, options...)...)
}

func UnsupportedMediaType(msg string, err error, options ...Option) error {
	return New(StatusUnsupportedMediaType, msg, append([]Option{WithErr(err)}, options...)...)
}

func PaymentRequired(msg string, err error, options ...Option) error {
	return New(StatusPaymentRequired, msg, append([]Option{WithErr(err)}, options...)...)
}

func Conflict(msg string, err error, options ...Option) error {
	return New(StatusConflict, msg, append([]Option{WithErr(err)}, options...)...)
}

func BadRequest(msg string, err error, options ...Option) error {
	return New(StatusBadRequest, msg, append([]Option{WithErr(err)}, options...)...)
}

func ValidationFailed(msg string, err error, options ...Option) error {
	return New(StatusValidationFailed, msg, append([]Option{WithErr(err)}, options...)...)
}

func Internal(msg string, err error, options ...Option) error {
	return New(StatusInternal, msg, append([]Option{WithErr(err)}, options...)...)
}

func Timeout(msg string, err error, options ...Option) error {
	return New(StatusTimeout, msg, append([]Option{WithErr(err)}, options...)...)
}

func Unauthorized(msg string, err error, options ...Option) error {
	return New(StatusUnauthorized, msg, append([]Option{WithErr(err)}, options...)...)
}

func Forbidden(msg string, err error, options ...Option) error {
	return New(StatusForbidden, msg, append([]Option{WithErr(err)}, options...)...)
}

func TooManyRequest(msg string, err error, options ...Option) error {
	return New(StatusTooManyRequests, msg, append([]Option{WithErr(err)}, options...)...)
}

func ClientClosedRequest(msg string, err error, options ...Option) error {
	return New(StatusClientClosedRequest, msg, append([]Option{WithErr(err)}, options...)...)
}

func NotImplemented(msg string, err error, options ...Option) error {
	return New(StatusNotImplemented, msg, append([]Option{WithErr(err)}, options...)...)
}

func BadGateway(msg string, err error, options ...Option) error {
	return New(StatusBadGateway, msg, append([]Option{WithErr(err)}, options...)...)
}
