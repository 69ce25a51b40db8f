package adapter

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes adapter errors.
type ErrorCode string

const (
	// ErrCodeUnknownBackend indicates no factory is registered for a name.
	ErrCodeUnknownBackend ErrorCode = "UNKNOWN_BACKEND"

	// ErrCodeUnknownModel indicates an operation named a model that was
	// never defined on the adapter.
	ErrCodeUnknownModel ErrorCode = "UNKNOWN_MODEL"

	// ErrCodeNotConnected indicates an operation ran before Connect.
	ErrCodeNotConnected ErrorCode = "NOT_CONNECTED"
)

// Error is a contract-level adapter failure. Backend driver errors are
// wrapped with fmt.Errorf instead.
type Error struct {
	Code    ErrorCode
	Adapter string
	Model   string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Adapter != "" && e.Model != "":
		return fmt.Sprintf("%s: %s (adapter=%s, model=%s)", e.Code, e.Message, e.Adapter, e.Model)
	case e.Adapter != "":
		return fmt.Sprintf("%s: %s (adapter=%s)", e.Code, e.Message, e.Adapter)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// UnknownBackendError is returned by Open for an unregistered backend name.
type UnknownBackendError struct {
	Name string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("%s: adapter %q is not registered", ErrCodeUnknownBackend, e.Name)
}

// UnknownModel builds the error for an undefined model.
func UnknownModel(adapterName, model string) error {
	return &Error{Code: ErrCodeUnknownModel, Adapter: adapterName, Model: model, Message: "model is not defined"}
}

// NotConnected builds the error for an operation before Connect.
func NotConnected(adapterName string) error {
	return &Error{Code: ErrCodeNotConnected, Adapter: adapterName, Message: "adapter is not connected"}
}

// IsUnknownBackend reports whether err is an UnknownBackendError.
func IsUnknownBackend(err error) bool {
	var ube *UnknownBackendError
	return errors.As(err, &ube)
}

// IsUnknownModel reports whether err names an undefined model.
func IsUnknownModel(err error) bool {
	return hasCode(err, ErrCodeUnknownModel)
}

// IsNotConnected reports whether err is a not-connected failure.
func IsNotConnected(err error) bool {
	return hasCode(err, ErrCodeNotConnected)
}

func hasCode(err error, code ErrorCode) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
