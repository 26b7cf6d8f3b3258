package orderengine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultOrderFillSyncInterval = 30 * time.Second
	defaultOrderFillSyncBatch    = 100
)

// OrderFillSyncService periodically reconciles every successful order whose fill is
// still open on the broker side.
type OrderFillSyncService struct {
	engine           *OrderEngineService
	orderHistoryRepo OrderHistoryRepository
	syncInterval     time.Duration
	batchSize        uint64
}

func NewOrderFillSyncService(engine *OrderEngineService, orderHistoryRepo OrderHistoryRepository, syncInterval time.Duration, batchSize uint64) *OrderFillSyncService {
	if syncInterval <= 0 {
		syncInterval = defaultOrderFillSyncInterval
	}
	if batchSize == 0 {
		batchSize = defaultOrderFillSyncBatch
	}

	return &OrderFillSyncService{
		engine:           engine,
		orderHistoryRepo: orderHistoryRepo,
		syncInterval:     syncInterval,
		batchSize:        batchSize,
	}
}

func (s *OrderFillSyncService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	s.SyncOpenFills(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncOpenFills(ctx)
		}
	}
}

// SyncOpenFills runs one reconciliation pass and returns how many rows got a fresh
// fill status.
func (s *OrderFillSyncService) SyncOpenFills(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	histories, err := s.orderHistoryRepo.GetOpenFills(ctx, s.batchSize)
	if err != nil {
		logrus.WithError(err).Error("failed to load order histories to sync")
		return 0
	}

	var refreshed int
	for i := range histories {
		if ctx.Err() != nil {
			return refreshed
		}

		history := &histories[i]
		logger := logrus.WithFields(logrus.Fields{
			"history_id":  history.ID,
			"order_id":    history.OrderID.String,
			"fill_status": history.FillStatus.String,
		})

		result, err := s.engine.ReconcileHistory(ctx, history)
		if err != nil {
			logger.WithError(err).Error("failed to sync order fill")
			continue
		}
		if result.Status.Degraded() {
			logger.WithField("error", result.Status.Error).Warn("order fill status unknown")
			continue
		}

		refreshed++
		logger.WithField("current_fill_status", result.Status.State).Debug("order fill synced")
	}

	return refreshed
}
