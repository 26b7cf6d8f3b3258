package contract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/sirupsen/logrus"
)

const defaultListTimeout = 5 * time.Second

// Directory resolves symbols and contract codes against the configured futures
// families. Contracts are read from the broker on every call, bounded by timeout.
type Directory struct {
	families []string
	timeout  time.Duration
}

func NewDirectory(families []string, timeout time.Duration) *Directory {
	if timeout <= 0 {
		timeout = defaultListTimeout
	}

	cleaned := make([]string, 0, len(families))
	for _, family := range families {
		family = strings.ToUpper(strings.TrimSpace(family))
		if family != "" {
			cleaned = append(cleaned, family)
		}
	}

	return &Directory{families: cleaned, timeout: timeout}
}

func (d *Directory) Families() []string {
	return append([]string(nil), d.families...)
}

// List returns every contract of the configured families, keeping only entries whose
// symbol and code carry the family prefix.
func (d *Directory) List(ctx context.Context, broker entity.Broker) ([]entity.Instrument, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	instruments := make([]entity.Instrument, 0)
	for _, family := range d.families {
		contracts, err := broker.ListFutures(ctx, family)
		if err != nil {
			return nil, fmt.Errorf("list %s futures: %w", family, err)
		}

		for _, contract := range contracts {
			if !strings.HasPrefix(contract.Symbol, family) || !strings.HasPrefix(contract.Code, family) {
				logrus.WithFields(logrus.Fields{
					"family": family,
					"symbol": contract.Symbol,
					"code":   contract.Code,
				}).Debug("skipping contract outside family")
				continue
			}
			instruments = append(instruments, contract)
		}
	}

	return instruments, nil
}

func (d *Directory) Symbols(ctx context.Context, broker entity.Broker) ([]string, error) {
	instruments, err := d.List(ctx, broker)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(instruments))
	for _, instrument := range instruments {
		symbols = append(symbols, instrument.Symbol)
	}
	return symbols, nil
}

// Resolve looks query up by symbol first and by contract code second. An unknown
// query yields *entity.InstrumentNotFoundError.
func (d *Directory) Resolve(ctx context.Context, broker entity.Broker, query string) (entity.Instrument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return entity.Instrument{}, &entity.InstrumentNotFoundError{Query: query}
	}

	instruments, err := d.List(ctx, broker)
	if err != nil {
		return entity.Instrument{}, err
	}

	for _, instrument := range instruments {
		if instrument.Symbol == query {
			return instrument, nil
		}
	}
	for _, instrument := range instruments {
		if instrument.Code == query {
			return instrument, nil
		}
	}

	return entity.Instrument{}, &entity.InstrumentNotFoundError{Query: query}
}
