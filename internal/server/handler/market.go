package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/infrabond/core/internal/domain"
	"github.com/infrabond/core/internal/market"
)

// MarketService defines the methods the market handler requires from the
// market service.
type MarketService interface {
	Open(ctx context.Context, caller common.Address, projectID, question string, deadline time.Time, b decimal.Decimal) (domain.Market, error)
	QuoteShares(ctx context.Context, marketID string, side domain.Side, shares decimal.Decimal) (market.Quote, error)
	Buy(ctx context.Context, marketID string, trader common.Address, side domain.Side, shares decimal.Decimal) (domain.Trade, error)
	Sell(ctx context.Context, marketID string, trader common.Address, side domain.Side, shares decimal.Decimal) (domain.Trade, error)
	Resolve(ctx context.Context, caller common.Address, marketID string, outcome, force bool) (domain.Market, error)
	ClaimWinnings(ctx context.Context, marketID string, holder common.Address) (decimal.Decimal, error)
	Backstop(ctx context.Context, caller common.Address, marketID string, amount decimal.Decimal) error
	Prices(ctx context.Context, marketID string) (domain.MarketPrices, error)
	Get(ctx context.Context, marketID string) (domain.Market, error)
	GetByProject(ctx context.Context, projectID string) (domain.Market, error)
	Trades(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error)
	Holding(ctx context.Context, marketID string, holder common.Address, side domain.Side) (domain.OutcomeHolding, error)
}

// MarketHandler serves outcome-market HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

type openMarketRequest struct {
	Question  string    `json:"question"`
	Deadline  time.Time `json:"deadline"`
	Liquidity string    `json:"liquidity"`
}

// OpenMarket opens the project's outcome market. Operator only.
// POST /api/projects/{id}/market
func (h *MarketHandler) OpenMarket(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req openMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	b, err := parseAmount("liquidity", req.Liquidity)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	m, err := h.markets.Open(r.Context(), caller, pathParam(r, "id"), req.Question, req.Deadline, b)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetProjectMarket returns the market attached to a project.
// GET /api/projects/{id}/market
func (h *MarketHandler) GetProjectMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.GetByProject(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetPrices returns the instantaneous YES/NO price pair.
// GET /api/markets/{id}/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	p, err := h.markets.Prices(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Quote prices a hypothetical trade without executing it.
// GET /api/markets/{id}/quote?side=yes&shares=10
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	side, err := parseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	shares, err := parseAmount("shares", r.URL.Query().Get("shares"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	q, err := h.markets.QuoteShares(r.Context(), pathParam(r, "id"), side, shares)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type tradeRequest struct {
	Side   string `json:"side"`
	Shares string `json:"shares"`
}

func (h *MarketHandler) parseTrade(r *http.Request) (domain.Side, decimal.Decimal, error) {
	var req tradeRequest
	if err := decodeJSON(r, &req); err != nil {
		return "", decimal.Decimal{}, err
	}
	side, err := parseSide(req.Side)
	if err != nil {
		return "", decimal.Decimal{}, err
	}
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		return "", decimal.Decimal{}, err
	}
	return side, shares, nil
}

// Buy purchases outcome shares at the LMSR price.
// POST /api/markets/{id}/buy
func (h *MarketHandler) Buy(w http.ResponseWriter, r *http.Request) {
	trader, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	side, shares, err := h.parseTrade(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	tr, err := h.markets.Buy(r.Context(), pathParam(r, "id"), trader, side, shares)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// Sell sells outcome shares back to the pool.
// POST /api/markets/{id}/sell
func (h *MarketHandler) Sell(w http.ResponseWriter, r *http.Request) {
	trader, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	side, shares, err := h.parseTrade(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	tr, err := h.markets.Sell(r.Context(), pathParam(r, "id"), trader, side, shares)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// ListTrades returns the market's append-only trade log.
// GET /api/markets/{id}/trades
func (h *MarketHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.markets.Trades(r.Context(), pathParam(r, "id"), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// GetOutcomeHolding returns a trader's outcome-share balance on one side.
// GET /api/markets/{id}/holdings/{address}?side=yes
func (h *MarketHandler) GetOutcomeHolding(w http.ResponseWriter, r *http.Request) {
	holder, err := parseHexAddress("address", pathParam(r, "address"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	side, err := parseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	holding, err := h.markets.Holding(r.Context(), pathParam(r, "id"), holder, side)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, holding)
}

type resolveMarketRequest struct {
	Outcome bool `json:"outcome"`
	Force   bool `json:"force"`
}

// ResolveMarket settles the market to a final outcome. Oracle only.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req resolveMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	m, err := h.markets.Resolve(r.Context(), caller, pathParam(r, "id"), req.Outcome, req.Force)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ClaimWinnings pays out the caller's winning-side shares at 1 unit each.
// POST /api/markets/{id}/claim
func (h *MarketHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	holder, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	payout, err := h.markets.ClaimWinnings(r.Context(), pathParam(r, "id"), holder)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payout": payout.String()})
}

type backstopRequest struct {
	Amount string `json:"amount"`
}

// Backstop tops up the market vault from the caller's account. Operator only.
// POST /api/markets/{id}/backstop
func (h *MarketHandler) Backstop(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req backstopRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := h.markets.Backstop(r.Context(), caller, pathParam(r, "id"), amount); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "backstopped"})
}
