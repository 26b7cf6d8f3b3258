package http

import (
	"net/http"
	"strings"

	"github.com/krobus00/signal-order-service/internal/entity"
)

type SymbolResponse struct {
	Symbol         string `json:"symbol"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	Exchange       string `json:"exchange"`
	DeliveryMonth  string `json:"delivery_month"`
	UnderlyingKind string `json:"underlying_kind"`
	Unit           int64  `json:"unit"`
	LimitUp        string `json:"limit_up"`
	LimitDown      string `json:"limit_down"`
	Reference      string `json:"reference"`
}

type PositionResponse struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	Direction string `json:"direction"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price"`
	LastPrice string `json:"last_price"`
	PnL       string `json:"pnl"`
}

func (h *Handler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	mode, err := h.tradingMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	instruments, err := h.orderService.ListInstruments(r.Context(), mode)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	symbols := make([]string, 0, len(instruments))
	for _, instrument := range instruments {
		symbols = append(symbols, instrument.Symbol)
	}

	writeJSON(w, http.StatusOK, map[string]any{"symbols": symbols, "count": len(symbols)})
}

func (h *Handler) GetSymbol(w http.ResponseWriter, r *http.Request) {
	mode, err := h.tradingMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	instrument, err := h.orderService.GetInstrument(r.Context(), mode, strings.TrimSpace(r.PathValue("symbol")))
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, mapInstrumentToHTTPResponse(instrument))
}

func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	mode, err := h.tradingMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	instruments, err := h.orderService.ListInstruments(r.Context(), mode)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	contracts := make([]entity.InstrumentSummary, 0, len(instruments))
	for _, instrument := range instruments {
		contracts = append(contracts, instrument.Summary())
	}

	writeJSON(w, http.StatusOK, map[string]any{"contracts": contracts, "count": len(contracts)})
}

func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	mode, err := h.tradingMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	positions, err := h.orderService.ListPositions(r.Context(), mode)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	resp := make([]PositionResponse, 0, len(positions))
	for _, position := range positions {
		resp = append(resp, PositionResponse{
			ID:        position.ID,
			Code:      position.Code,
			Direction: string(position.Direction),
			Quantity:  position.Quantity,
			Price:     position.Price.String(),
			LastPrice: position.LastPrice.String(),
			PnL:       position.PnL.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"positions": resp, "count": len(resp)})
}

func mapInstrumentToHTTPResponse(instrument entity.Instrument) SymbolResponse {
	return SymbolResponse{
		Symbol:         instrument.Symbol,
		Code:           instrument.Code,
		Name:           instrument.Name,
		Category:       instrument.Category,
		Exchange:       instrument.Exchange,
		DeliveryMonth:  instrument.DeliveryMonth,
		UnderlyingKind: instrument.UnderlyingKind,
		Unit:           instrument.Unit,
		LimitUp:        instrument.LimitUp.String(),
		LimitDown:      instrument.LimitDown.String(),
		Reference:      instrument.Reference.String(),
	}
}
