package orderengine

import (
	"errors"
	"fmt"

	"github.com/krobus00/signal-order-service/internal/entity"
)

var (
	ErrInvalidQuantity = errors.New("requested quantity must be a positive integer")
	ErrUnknownAction   = errors.New("unknown order action")
)

// ComputeOrder sizes the order for an intent against the current net position.
// A nil order with a nil error means there is nothing to submit.
//
// Entries fold an opposing position into a single reversal order. Exits always close
// the full position in the matching direction and ignore the requested quantity.
func ComputeOrder(instrument entity.Instrument, action entity.OrderAction, requestedQuantity, currentPosition int64) (*entity.ComputedOrder, error) {
	switch action {
	case entity.OrderActionLongEntry:
		if requestedQuantity <= 0 {
			return nil, ErrInvalidQuantity
		}

		quantity := requestedQuantity
		if currentPosition < 0 {
			quantity += -currentPosition
		}
		return &entity.ComputedOrder{Side: entity.OrderSideBuy, Quantity: quantity, Instrument: instrument}, nil

	case entity.OrderActionShortEntry:
		if requestedQuantity <= 0 {
			return nil, ErrInvalidQuantity
		}

		quantity := requestedQuantity
		if currentPosition > 0 {
			quantity += currentPosition
		}
		return &entity.ComputedOrder{Side: entity.OrderSideSell, Quantity: quantity, Instrument: instrument}, nil

	case entity.OrderActionLongExit:
		if currentPosition <= 0 {
			return nil, nil
		}
		return &entity.ComputedOrder{Side: entity.OrderSideSell, Quantity: currentPosition, Instrument: instrument}, nil

	case entity.OrderActionShortExit:
		if currentPosition >= 0 {
			return nil, nil
		}
		return &entity.ComputedOrder{Side: entity.OrderSideBuy, Quantity: -currentPosition, Instrument: instrument}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}
