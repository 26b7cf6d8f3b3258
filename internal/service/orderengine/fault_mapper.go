package orderengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/krobus00/signal-order-service/internal/entity"
)

// classifyOrderFault turns a failure of a broker call made while sizing, submitting
// or reconciling into the fault taxonomy. Faults that are already classified pass
// through. timeoutKind is the kind reported when the call ran out of time.
func classifyOrderFault(err error, timeoutKind entity.OrderFaultKind, step string) error {
	if err == nil {
		return nil
	}

	var (
		loginFault    *entity.LoginFault
		orderFault    *entity.OrderFault
		notFound      *entity.InstrumentNotFoundError
		brokerErr     *entity.BrokerError
		faultMessage  = fmt.Sprintf("%s: %v", step, err)
		timeoutReason = fmt.Sprintf("%s: broker did not answer in time", step)
	)

	switch {
	case errors.As(err, &loginFault), errors.As(err, &orderFault), errors.As(err, &notFound):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return entity.NewOrderFault(timeoutKind, timeoutReason, err)
	case !errors.As(err, &brokerErr):
		return entity.NewOrderFault(entity.OrderFaultBrokerRejected, faultMessage, err)
	}

	switch brokerErr.Code {
	case entity.BrokerErrorToken:
		return entity.NewLoginFault(entity.LoginFaultCredential, faultMessage, err)
	case entity.BrokerErrorTimeout:
		return entity.NewOrderFault(timeoutKind, timeoutReason, err)
	case entity.BrokerErrorAccountNotSigned, entity.BrokerErrorAccountNotProvided:
		return entity.NewOrderFault(entity.OrderFaultAccountNotAuthorized, faultMessage, err)
	case entity.BrokerErrorContractNotFound:
		return entity.NewOrderFault(entity.OrderFaultInstrumentNotFound, faultMessage, err)
	case entity.BrokerErrorMaintenance, entity.BrokerErrorUnavailable, entity.BrokerErrorRejected:
		return entity.NewOrderFault(entity.OrderFaultBrokerRejected, faultMessage, err)
	default:
		return entity.NewOrderFault(entity.OrderFaultBrokerRejected, faultMessage, err)
	}
}

// isSessionFault reports whether err means the broker no longer accepts the session.
func isSessionFault(err error) bool {
	var loginFault *entity.LoginFault
	return errors.As(err, &loginFault)
}
