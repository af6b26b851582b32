package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/infrabond/core/internal/yield"
)

// YieldService defines the methods the yield handler requires from the
// distributor.
type YieldService interface {
	DepositRevenue(ctx context.Context, projectID string, from common.Address, amount decimal.Decimal) error
	Claimable(ctx context.Context, projectID string, holder common.Address) (decimal.Decimal, error)
	Claim(ctx context.Context, projectID string, holder common.Address) (decimal.Decimal, error)
	ProjectInfo(ctx context.Context, projectID string) (yield.Info, error)
}

// YieldHandler serves yield distribution HTTP endpoints.
type YieldHandler struct {
	yields YieldService
	logger *slog.Logger
}

// NewYieldHandler creates a YieldHandler with the given service and logger.
func NewYieldHandler(yields YieldService, logger *slog.Logger) *YieldHandler {
	return &YieldHandler{
		yields: yields,
		logger: logger,
	}
}

// GetYieldInfo returns the project's yield pool summary and realised APY.
// GET /api/projects/{id}/yield
func (h *YieldHandler) GetYieldInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.yields.ProjectInfo(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetClaimable returns one holder's currently claimable yield.
// GET /api/projects/{id}/yield/claimable/{address}
func (h *YieldHandler) GetClaimable(w http.ResponseWriter, r *http.Request) {
	holder, err := parseHexAddress("address", pathParam(r, "address"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	amount, err := h.yields.Claimable(r.Context(), pathParam(r, "id"), holder)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"claimable": amount.String()})
}

type depositRevenueRequest struct {
	Amount string `json:"amount"`
}

// DepositRevenue pays project revenue into the yield pool.
// POST /api/projects/{id}/yield/deposit
func (h *YieldHandler) DepositRevenue(w http.ResponseWriter, r *http.Request) {
	from, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req depositRevenueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := h.yields.DepositRevenue(r.Context(), pathParam(r, "id"), from, amount); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deposited"})
}

// ClaimYield pays out the caller's proportional share of undistributed yield.
// POST /api/projects/{id}/yield/claim
func (h *YieldHandler) ClaimYield(w http.ResponseWriter, r *http.Request) {
	holder, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	amount, err := h.yields.Claim(r.Context(), pathParam(r, "id"), holder)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"claimed": amount.String()})
}
