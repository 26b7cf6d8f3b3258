package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrOrderHistoryNotFound   = errors.New("order history not found")
	ErrDuplicateRequestID     = errors.New("request id already recorded")
	ErrOrderHistoryNotPending = errors.New("order history is not pending")
	ErrOrderHistoryClaimed    = errors.New("order history is already claimed or not pending")
)

var orderHistoryColumns = []string{
	"id",
	"request_id",
	"symbol",
	"action",
	"quantity",
	"simulation",
	"status",
	"order_id",
	"order_result",
	"error_message",
	"fill_status",
	"fill_quantity",
	"fill_price",
	"fill_checked_at",
	"created_at",
	"updated_at",
}

type OrderHistoryRepository struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
}

func NewOrderHistoryRepository(db *sqlx.DB) *OrderHistoryRepository {
	placeholder := sq.PlaceholderFormat(sq.Dollar)
	if db.DriverName() == "sqlite" {
		placeholder = sq.Question
	}

	return &OrderHistoryRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

func (r *OrderHistoryRepository) Create(ctx context.Context, orderHistory *entity.OrderHistory) error {
	queryBuilder := r.builder.
		Insert(orderHistory.TableName()).
		Columns(
			"request_id",
			"symbol",
			"action",
			"quantity",
			"simulation",
			"status",
			"order_id",
			"order_result",
			"error_message",
			"fill_status",
			"fill_quantity",
			"fill_price",
			"fill_checked_at",
			"created_at",
			"updated_at",
		).
		Values(
			orderHistory.RequestID,
			orderHistory.Symbol,
			string(orderHistory.Action),
			orderHistory.Quantity,
			orderHistory.Simulation,
			string(orderHistory.Status),
			orderHistory.OrderID,
			orderHistory.OrderResult,
			orderHistory.ErrorMessage,
			orderHistory.FillStatus,
			orderHistory.FillQuantity,
			orderHistory.FillPrice,
			utcTime(orderHistory.FillCheckedAt.Ptr()),
			orderHistory.CreatedAt.UTC(),
			orderHistory.UpdatedAt.UTC(),
		).
		Suffix("RETURNING id")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRequestID
		}
		return err
	}

	orderHistory.ID = id

	return nil
}

func (r *OrderHistoryRepository) GetByID(ctx context.Context, id int64) (*entity.OrderHistory, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *OrderHistoryRepository) GetByRequestID(ctx context.Context, requestID string) (*entity.OrderHistory, error) {
	return r.getOne(ctx, sq.Eq{"request_id": requestID})
}

// Finalize writes the terminal status of a pending record. A record is finalized at
// most once.
func (r *OrderHistoryRepository) Finalize(ctx context.Context, orderHistory *entity.OrderHistory) error {
	queryBuilder := r.builder.
		Update(orderHistory.TableName()).
		Set("status", string(orderHistory.Status)).
		Set("order_id", orderHistory.OrderID).
		Set("order_result", orderHistory.OrderResult).
		Set("error_message", orderHistory.ErrorMessage).
		Set("fill_status", orderHistory.FillStatus).
		Set("fill_quantity", orderHistory.FillQuantity).
		Set("fill_price", orderHistory.FillPrice).
		Set("fill_checked_at", utcTime(orderHistory.FillCheckedAt.Ptr())).
		Set("updated_at", orderHistory.UpdatedAt.UTC()).
		Where(sq.Eq{"id": orderHistory.ID, "status": string(entity.HistoryStatusPending)})

	rows, err := r.exec(ctx, queryBuilder)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderHistoryNotPending
	}

	return nil
}

// Claim marks a pending record as taken by one consumer. Only one caller can claim a
// record until the claim is released.
func (r *OrderHistoryRepository) Claim(ctx context.Context, id int64, claimedAt time.Time) error {
	queryBuilder := r.builder.
		Update(entity.OrderHistory{}.TableName()).
		Set("claimed_at", claimedAt.UTC()).
		Where(sq.Eq{"id": id, "status": string(entity.HistoryStatusPending), "claimed_at": nil})

	rows, err := r.exec(ctx, queryBuilder)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderHistoryClaimed
	}

	return nil
}

// ReleaseClaim makes a pending record claimable again.
func (r *OrderHistoryRepository) ReleaseClaim(ctx context.Context, id int64) error {
	queryBuilder := r.builder.
		Update(entity.OrderHistory{}.TableName()).
		Set("claimed_at", nil).
		Where(sq.Eq{"id": id, "status": string(entity.HistoryStatusPending)})

	rows, err := r.exec(ctx, queryBuilder)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderHistoryNotPending
	}

	return nil
}

func (r *OrderHistoryRepository) UpdateFill(ctx context.Context, orderHistory *entity.OrderHistory) error {
	queryBuilder := r.builder.
		Update(orderHistory.TableName()).
		Set("fill_status", orderHistory.FillStatus).
		Set("fill_quantity", orderHistory.FillQuantity).
		Set("fill_price", orderHistory.FillPrice).
		Set("fill_checked_at", utcTime(orderHistory.FillCheckedAt.Ptr())).
		Set("updated_at", orderHistory.FillCheckedAt.Time.UTC()).
		Where(sq.Eq{"id": orderHistory.ID})

	rows, err := r.exec(ctx, queryBuilder)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderHistoryNotFound
	}

	return nil
}

func (r *OrderHistoryRepository) TouchFillCheckedAt(ctx context.Context, orderHistory *entity.OrderHistory) error {
	queryBuilder := r.builder.
		Update(orderHistory.TableName()).
		Set("fill_checked_at", utcTime(orderHistory.FillCheckedAt.Ptr())).
		Where(sq.Eq{"id": orderHistory.ID})

	rows, err := r.exec(ctx, queryBuilder)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderHistoryNotFound
	}

	return nil
}

func (r *OrderHistoryRepository) List(ctx context.Context, filter entity.OrderHistoryFilter) ([]entity.OrderHistory, error) {
	queryBuilder := applyOrderHistoryFilter(
		r.builder.Select(orderHistoryColumns...).From(entity.OrderHistory{}.TableName()),
		filter,
	).OrderBy("created_at DESC", "id DESC")

	if filter.Limit > 0 {
		queryBuilder = queryBuilder.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		queryBuilder = queryBuilder.Offset(filter.Offset)
	}

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	orderHistories := make([]entity.OrderHistory, 0)
	err = r.db.SelectContext(ctx, &orderHistories, query, args...)
	if err != nil {
		return nil, err
	}

	return orderHistories, nil
}

func (r *OrderHistoryRepository) Count(ctx context.Context, filter entity.OrderHistoryFilter) (int64, error) {
	queryBuilder := applyOrderHistoryFilter(
		r.builder.Select("COUNT(*)").From(entity.OrderHistory{}.TableName()),
		filter,
	)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, err
	}

	var total int64
	err = r.db.GetContext(ctx, &total, query, args...)
	if err != nil {
		return 0, err
	}

	return total, nil
}

// GetOpenFills returns successful orders whose fill can still change, least recently
// checked first.
func (r *OrderHistoryRepository) GetOpenFills(ctx context.Context, limit uint64) ([]entity.OrderHistory, error) {
	queryBuilder := r.builder.
		Select(orderHistoryColumns...).
		From(entity.OrderHistory{}.TableName()).
		Where(sq.Eq{
			"status":      string(entity.HistoryStatusSuccess),
			"fill_status": openFillStates(),
		}).
		Where(sq.NotEq{"order_id": nil}).
		OrderBy("COALESCE(fill_checked_at, created_at) ASC", "id ASC")

	if limit > 0 {
		queryBuilder = queryBuilder.Limit(limit)
	}

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	orderHistories := make([]entity.OrderHistory, 0)
	err = r.db.SelectContext(ctx, &orderHistories, query, args...)
	if err != nil {
		return nil, err
	}

	return orderHistories, nil
}

func (r *OrderHistoryRepository) getOne(ctx context.Context, where sq.Eq) (*entity.OrderHistory, error) {
	query, args, err := r.builder.
		Select(orderHistoryColumns...).
		From(entity.OrderHistory{}.TableName()).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var orderHistory entity.OrderHistory
	err = r.db.GetContext(ctx, &orderHistory, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderHistoryNotFound
	}
	if err != nil {
		return nil, err
	}

	return &orderHistory, nil
}

func (r *OrderHistoryRepository) exec(ctx context.Context, queryBuilder sq.UpdateBuilder) (int64, error) {
	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func applyOrderHistoryFilter(queryBuilder sq.SelectBuilder, filter entity.OrderHistoryFilter) sq.SelectBuilder {
	if symbol := strings.TrimSpace(filter.Symbol); symbol != "" {
		queryBuilder = queryBuilder.Where(sq.Eq{"symbol": symbol})
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		queryBuilder = queryBuilder.Where(sq.Eq{"action": action})
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		queryBuilder = queryBuilder.Where(sq.Eq{"status": status})
	}
	if fillStatus := strings.TrimSpace(filter.FillStatus); fillStatus != "" {
		queryBuilder = queryBuilder.Where(sq.Eq{"fill_status": fillStatus})
	}
	if filter.StartDate != nil {
		queryBuilder = queryBuilder.Where(sq.GtOrEq{"created_at": filter.StartDate.UTC()})
	}
	if filter.EndDate != nil {
		queryBuilder = queryBuilder.Where(sq.Lt{"created_at": filter.EndDate.UTC()})
	}

	return queryBuilder
}

func openFillStates() []string {
	states := make([]string, 0)
	for _, state := range entity.OpenOrderStates {
		states = append(states, string(state))
	}
	return states
}

func utcTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE"))
	}

	return false
}
