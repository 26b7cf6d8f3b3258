package orderengine

import (
	"context"
	"time"

	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/sirupsen/logrus"
)

const defaultPositionTimeout = 5 * time.Second

// PositionReader reads the signed net quantity held in one instrument.
type PositionReader struct {
	timeout time.Duration
}

func NewPositionReader(timeout time.Duration) *PositionReader {
	if timeout <= 0 {
		timeout = defaultPositionTimeout
	}
	return &PositionReader{timeout: timeout}
}

// NetPosition returns a positive quantity for a long, a negative one for a short and
// zero when no position is open in instrument.
func (r *PositionReader) NetPosition(ctx context.Context, session *entity.Session, instrument entity.Instrument) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	positions, err := session.Broker.ListPositions(ctx, session.Account)
	if err != nil {
		return 0, classifyOrderFault(err, entity.OrderFaultBrokerRejected, "read position")
	}

	var net int64
	for _, position := range positions {
		if position.Code != instrument.Code {
			continue
		}

		signed, err := position.Net()
		if err != nil {
			return 0, entity.NewOrderFault(entity.OrderFaultBrokerRejected, err.Error(), err)
		}
		net += signed
	}

	logrus.WithFields(logrus.Fields{
		"mode":     session.Mode,
		"code":     instrument.Code,
		"position": net,
	}).Debug("current position")

	return net, nil
}
