package contract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	mxfNear = entity.Instrument{Symbol: "MXF202611", Code: "MXFK6"}
	mxfNext = entity.Instrument{Symbol: "MXF202612", Code: "MXFL6"}
	txfNear = entity.Instrument{Symbol: "TXF202611", Code: "TXFK6"}
	stray   = entity.Instrument{Symbol: "T5F202611", Code: "T5FK6"}
)

func brokerWithContracts(t *testing.T) *mocks.MockBroker {
	broker := mocks.NewMockBroker(t)
	broker.On("ListFutures", mock.Anything, "MXF").Return([]entity.Instrument{mxfNear, mxfNext}, nil)
	broker.On("ListFutures", mock.Anything, "TXF").Return([]entity.Instrument{txfNear, stray}, nil)
	return broker
}

func TestDirectory_List(t *testing.T) {
	directory := NewDirectory([]string{" mxf", "TXF", ""}, 0)
	assert.Equal(t, []string{"MXF", "TXF"}, directory.Families())

	instruments, err := directory.List(context.Background(), brokerWithContracts(t))
	require.NoError(t, err)
	assert.Equal(t, []entity.Instrument{mxfNear, mxfNext, txfNear}, instruments)
}

func TestDirectory_Symbols(t *testing.T) {
	symbols, err := NewDirectory([]string{"MXF", "TXF"}, 0).Symbols(context.Background(), brokerWithContracts(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"MXF202611", "MXF202612", "TXF202611"}, symbols)
}

func TestDirectory_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected entity.Instrument
		notFound bool
	}{
		{name: "by symbol", query: "MXF202612", expected: mxfNext},
		{name: "by code", query: "TXFK6", expected: txfNear},
		{name: "trims input", query: "  MXFK6 ", expected: mxfNear},
		{name: "outside families", query: "T5F202611", notFound: true},
		{name: "unknown", query: "ZZZ", notFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			directory := NewDirectory([]string{"MXF", "TXF"}, 0)
			instrument, err := directory.Resolve(context.Background(), brokerWithContracts(t), tt.query)

			if tt.notFound {
				assert.ErrorIs(t, err, entity.ErrInstrumentNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, instrument)
		})
	}
}

func TestDirectory_ResolveEmptyQuery(t *testing.T) {
	_, err := NewDirectory([]string{"MXF"}, 0).Resolve(context.Background(), mocks.NewMockBroker(t), " ")
	assert.ErrorIs(t, err, entity.ErrInstrumentNotFound)
}

func TestDirectory_BrokerFailure(t *testing.T) {
	broker := mocks.NewMockBroker(t)
	brokerErr := entity.NewBrokerError(entity.BrokerErrorToken, "expired", nil)
	broker.On("ListFutures", mock.Anything, "MXF").Return(nil, brokerErr).Once()

	_, err := NewDirectory([]string{"MXF", "TXF"}, 0).Resolve(context.Background(), broker, "MXFK6")

	var target *entity.BrokerError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, entity.BrokerErrorToken, target.Code)
	assert.False(t, errors.Is(err, entity.ErrInstrumentNotFound))
}

func TestDirectory_ResolveTimeout(t *testing.T) {
	broker := mocks.NewMockBroker(t)
	broker.On("ListFutures", mock.Anything, "MXF").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	start := time.Now()
	_, err := NewDirectory([]string{"MXF"}, 20*time.Millisecond).Resolve(context.Background(), broker, "MXF202611")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
