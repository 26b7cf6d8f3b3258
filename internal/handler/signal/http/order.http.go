package http

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/signal-order-service/internal/constant"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/service/orderengine"
)

const (
	defaultOrderListLimit = 100
	maxOrderListLimit     = 1000
)

var (
	errInvalidJSONBody = errors.New("invalid json body")
	errInvalidAction   = errors.New("action must be one of long_entry, long_exit, short_entry, short_exit")
	errInvalidQuantity = errors.New("quantity must be greater than 0")
	errSymbolRequired  = errors.New("symbol is required")
	errInvalidLimit    = fmt.Errorf("limit must be between 1 and %d", maxOrderListLimit)
	errInvalidOffset   = errors.New("offset must be a non-negative integer")
	errInvalidDate     = errors.New("dates must use the YYYY-MM-DD format")
	errInvalidFormat   = errors.New("format must be csv or json")
	errInvalidOrderID  = errors.New("order id must be a positive integer")
)

var orderExportHeader = []string{
	"id", "symbol", "action", "quantity", "status", "fill_status", "fill_quantity",
	"fill_price", "order_id", "error_message", "created_at",
}

type PlaceOrderRequest struct {
	Action    string `json:"action"`
	Quantity  int64  `json:"quantity"`
	Symbol    string `json:"symbol"`
	RequestID string `json:"request_id"`
	AuthKey   string `json:"auth_key"`
}

type PlaceOrderResponse struct {
	Status    string        `json:"status"`
	HistoryID int64         `json:"history_id"`
	OrderID   *string       `json:"order_id,omitempty"`
	Trade     *entity.Trade `json:"trade,omitempty"`
	Position  *int64        `json:"position,omitempty"`
	Message   string        `json:"message,omitempty"`
}

type PlaceOrderAsyncResponse struct {
	HistoryID int64   `json:"history_id"`
	RequestID *string `json:"request_id,omitempty"`
	Status    string  `json:"status"`
}

type OrderHistoryResponse struct {
	ID            int64   `json:"id"`
	RequestID     *string `json:"request_id,omitempty"`
	Symbol        string  `json:"symbol"`
	Action        string  `json:"action"`
	Quantity      int64   `json:"quantity"`
	Simulation    bool    `json:"simulation"`
	Status        string  `json:"status"`
	OrderID       *string `json:"order_id"`
	OrderResult   *string `json:"order_result"`
	ErrorMessage  *string `json:"error_message"`
	FillStatus    *string `json:"fill_status"`
	FillQuantity  *int64  `json:"fill_quantity"`
	FillPrice     *string `json:"fill_price"`
	FillCheckedAt *string `json:"fill_checked_at"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

type RecheckResponse struct {
	ID                 int64         `json:"id"`
	Status             string        `json:"status"`
	PreviousFillStatus *string       `json:"previous_fill_status"`
	CurrentFillStatus  string        `json:"current_fill_status"`
	FillQuantity       *int64        `json:"fill_quantity"`
	FillPrice          *string       `json:"fill_price"`
	Deals              []entity.Deal `json:"deals"`
	Error              string        `json:"error,omitempty"`
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	orderReq, ok := h.decodeOrderRequest(w, r)
	if !ok {
		return
	}

	result, err := h.orderService.PlaceOrder(r.Context(), orderReq)
	if err != nil {
		var extra map[string]any
		if result != nil && result.History != nil {
			extra = map[string]any{"history_id": result.History.ID}
		}
		writeServiceError(w, err, extra)
		return
	}

	writeJSON(w, http.StatusOK, mapPlaceOrderResultToHTTPResponse(result))
}

func (h *Handler) PlaceOrderAsync(w http.ResponseWriter, r *http.Request) {
	orderReq, ok := h.decodeOrderRequest(w, r)
	if !ok {
		return
	}

	result, err := h.orderService.PlaceOrderAsync(r.Context(), orderReq)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusAccepted, PlaceOrderAsyncResponse{
		HistoryID: result.History.ID,
		RequestID: result.History.RequestID.Ptr(),
		Status:    "queued",
	})
}

// decodeOrderRequest parses and validates a signal body. It writes the error response
// itself and reports whether the request may proceed.
func (h *Handler) decodeOrderRequest(w http.ResponseWriter, r *http.Request) (orderengine.PlaceOrderRequest, bool) {
	defer r.Body.Close()

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return orderengine.PlaceOrderRequest{}, false
	}

	if h.cfg.WebhookKeyRequired {
		key := r.Header.Get(constant.HeaderAuthKey)
		if strings.TrimSpace(key) == "" {
			key = req.AuthKey
		}
		if err := h.validateAuthKey(key); err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return orderengine.PlaceOrderRequest{}, false
		}
	}

	simulation, err := h.simulation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return orderengine.PlaceOrderRequest{}, false
	}

	action, ok := entity.ParseOrderAction(req.Action)
	if !ok {
		writeError(w, http.StatusBadRequest, errInvalidAction)
		return orderengine.PlaceOrderRequest{}, false
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, errInvalidQuantity)
		return orderengine.PlaceOrderRequest{}, false
	}
	if strings.TrimSpace(req.Symbol) == "" {
		writeError(w, http.StatusBadRequest, errSymbolRequired)
		return orderengine.PlaceOrderRequest{}, false
	}

	return orderengine.PlaceOrderRequest{
		Intent: entity.OrderIntent{
			Action:   action,
			Quantity: req.Quantity,
			Symbol:   strings.TrimSpace(req.Symbol),
		},
		Simulation: simulation,
		RequestID:  strings.TrimSpace(req.RequestID),
	}, true
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderHistoryFilter(r, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	histories, total, err := h.orderService.ListOrderHistories(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	orders := make([]OrderHistoryResponse, 0, len(histories))
	for _, history := range histories {
		orders = append(orders, mapOrderHistoryToHTTPResponse(history))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"count":  len(orders),
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (h *Handler) ExportOrders(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		writeError(w, http.StatusBadRequest, errInvalidFormat)
		return
	}

	filter, err := parseOrderHistoryFilter(r, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	histories, _, err := h.orderService.ListOrderHistories(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	if format == "json" {
		orders := make([]OrderHistoryResponse, 0, len(histories))
		for _, history := range histories {
			orders = append(orders, mapOrderHistoryToHTTPResponse(history))
		}

		w.Header().Set("Content-Disposition", "attachment; filename=order_history.json")
		writeJSON(w, http.StatusOK, orders)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=order_history.csv")
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)
	_ = writer.Write(orderExportHeader)
	for _, history := range histories {
		_ = writer.Write(orderHistoryCSVRow(history))
	}
	writer.Flush()
}

func (h *Handler) RecheckOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errInvalidOrderID)
		return
	}

	result, err := h.orderService.RecheckOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, map[string]any{"id": id})
		return
	}

	writeJSON(w, http.StatusOK, mapRecheckResultToHTTPResponse(result))
}

// parseOrderHistoryFilter reads the list filters. Dates are whole days and the end
// date is inclusive.
func parseOrderHistoryFilter(r *http.Request, paged bool) (entity.OrderHistoryFilter, error) {
	query := r.URL.Query()
	filter := entity.OrderHistoryFilter{
		Symbol:     strings.TrimSpace(query.Get("symbol")),
		Action:     strings.TrimSpace(query.Get("action")),
		Status:     strings.TrimSpace(query.Get("status")),
		FillStatus: strings.TrimSpace(query.Get("fill_status")),
	}

	if raw := strings.TrimSpace(query.Get("start_date")); raw != "" {
		start, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return filter, errInvalidDate
		}
		filter.StartDate = &start
	}
	if raw := strings.TrimSpace(query.Get("end_date")); raw != "" {
		end, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return filter, errInvalidDate
		}
		end = end.Add(24 * time.Hour)
		filter.EndDate = &end
	}

	if !paged {
		return filter, nil
	}

	filter.Limit = defaultOrderListLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || limit < 1 || limit > maxOrderListLimit {
			return filter, errInvalidLimit
		}
		filter.Limit = limit
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		offset, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return filter, errInvalidOffset
		}
		filter.Offset = offset
	}

	return filter, nil
}

func mapPlaceOrderResultToHTTPResponse(result *orderengine.PlaceOrderResult) PlaceOrderResponse {
	resp := PlaceOrderResponse{
		Status:    string(result.History.Status),
		HistoryID: result.History.ID,
		OrderID:   result.History.OrderID.Ptr(),
	}

	if result.Outcome != nil {
		position := result.Outcome.Position
		resp.Position = &position
		resp.Trade = result.Outcome.Trade
	}
	if result.Outcome.NoAction() {
		resp.Message = "no position to exit"
	}

	return resp
}

func mapOrderHistoryToHTTPResponse(history entity.OrderHistory) OrderHistoryResponse {
	resp := OrderHistoryResponse{
		ID:           history.ID,
		RequestID:    history.RequestID.Ptr(),
		Symbol:       history.Symbol,
		Action:       string(history.Action),
		Quantity:     history.Quantity,
		Simulation:   history.Simulation,
		Status:       string(history.Status),
		OrderID:      history.OrderID.Ptr(),
		OrderResult:  history.OrderResult.Ptr(),
		ErrorMessage: history.ErrorMessage.Ptr(),
		FillStatus:   history.FillStatus.Ptr(),
		FillQuantity: history.FillQuantity.Ptr(),
		CreatedAt:    history.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    history.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if history.FillPrice.Valid {
		price := history.FillPrice.Decimal.String()
		resp.FillPrice = &price
	}
	if history.FillCheckedAt.Valid {
		checkedAt := history.FillCheckedAt.Time.UTC().Format(time.RFC3339)
		resp.FillCheckedAt = &checkedAt
	}

	return resp
}

func mapRecheckResultToHTTPResponse(result *orderengine.RecheckResult) RecheckResponse {
	history := result.History
	resp := RecheckResponse{
		ID:                 history.ID,
		Status:             string(history.Status),
		PreviousFillStatus: result.PreviousFillStatus.Ptr(),
		CurrentFillStatus:  string(result.Status.State),
		FillQuantity:       history.FillQuantity.Ptr(),
		Deals:              result.Status.Deals,
		Error:              result.Status.Error,
	}

	if resp.Deals == nil {
		resp.Deals = []entity.Deal{}
	}
	if history.FillPrice.Valid {
		price := history.FillPrice.Decimal.String()
		resp.FillPrice = &price
	}

	return resp
}

func orderHistoryCSVRow(history entity.OrderHistory) []string {
	fillQuantity := ""
	if history.FillQuantity.Valid {
		fillQuantity = strconv.FormatInt(history.FillQuantity.Int64, 10)
	}

	fillPrice := ""
	if history.FillPrice.Valid {
		fillPrice = history.FillPrice.Decimal.String()
	}

	return []string{
		strconv.FormatInt(history.ID, 10),
		history.Symbol,
		string(history.Action),
		strconv.FormatInt(history.Quantity, 10),
		string(history.Status),
		history.FillStatus.String,
		fillQuantity,
		fillPrice,
		history.OrderID.String,
		history.ErrorMessage.String,
		history.CreatedAt.UTC().Format(time.RFC3339),
	}
}
