package entity

import (
	"errors"
	"fmt"
)

var (
	ErrInstrumentNotFound = errors.New("instrument not found")
)

type LoginFaultKind string

const (
	LoginFaultCredential    LoginFaultKind = "credential"
	LoginFaultMaintenance   LoginFaultKind = "maintenance"
	LoginFaultTimeout       LoginFaultKind = "timeout"
	LoginFaultConfiguration LoginFaultKind = "configuration"
)

// LoginFault is returned when a broker session cannot be acquired or has been
// rejected by the broker. Cause is kept for logging only and is not unwrapped, so
// broker error types stop at the fault.
type LoginFault struct {
	Kind    LoginFaultKind
	Message string
	Cause   error
}

func NewLoginFault(kind LoginFaultKind, message string, cause error) *LoginFault {
	return &LoginFault{Kind: kind, Message: message, Cause: cause}
}

func (f *LoginFault) Error() string {
	return fmt.Sprintf("login failed (%s): %s", f.Kind, f.Message)
}

func (f *LoginFault) Retryable() bool {
	switch f.Kind {
	case LoginFaultMaintenance, LoginFaultTimeout:
		return true
	case LoginFaultCredential, LoginFaultConfiguration:
		return false
	default:
		return false
	}
}

type InstrumentNotFoundError struct {
	Query string
}

func (e *InstrumentNotFoundError) Error() string {
	return fmt.Sprintf("instrument not found: %s", e.Query)
}

func (e *InstrumentNotFoundError) Is(target error) bool {
	return target == ErrInstrumentNotFound
}

type OrderFaultKind string

const (
	OrderFaultInstrumentNotFound   OrderFaultKind = "instrument_not_found"
	OrderFaultAccountNotAuthorized OrderFaultKind = "account_not_authorized"
	OrderFaultSubmissionTimeout    OrderFaultKind = "submission_timeout"
	OrderFaultBrokerRejected       OrderFaultKind = "broker_rejected"
)

// OrderFault is the classified failure of a position read or an order submission.
// Like LoginFault it does not unwrap to its Cause.
type OrderFault struct {
	Kind    OrderFaultKind
	Message string
	Cause   error
}

func NewOrderFault(kind OrderFaultKind, message string, cause error) *OrderFault {
	return &OrderFault{Kind: kind, Message: message, Cause: cause}
}

func (f *OrderFault) Error() string {
	return fmt.Sprintf("order failed (%s): %s", f.Kind, f.Message)
}

func (f *OrderFault) Is(target error) bool {
	return f.Kind == OrderFaultInstrumentNotFound && target == ErrInstrumentNotFound
}
