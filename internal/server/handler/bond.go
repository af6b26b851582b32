package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/infrabond/core/internal/domain"
)

// BondService defines the methods the bond handler requires from the bond
// ledger.
type BondService interface {
	Create(ctx context.Context, caller common.Address, projectID string) (domain.Bond, error)
	Purchase(ctx context.Context, projectID string, buyer common.Address, collateral decimal.Decimal) (domain.BondHolding, error)
	Transfer(ctx context.Context, projectID string, from, to common.Address, units decimal.Decimal) error
	Get(ctx context.Context, projectID string) (domain.Bond, error)
	Holding(ctx context.Context, projectID string, holder common.Address) (domain.BondHolding, error)
}

// BondHandler serves bond ledger HTTP endpoints.
type BondHandler struct {
	bonds  BondService
	logger *slog.Logger
}

// NewBondHandler creates a BondHandler with the given service and logger.
func NewBondHandler(bonds BondService, logger *slog.Logger) *BondHandler {
	return &BondHandler{
		bonds:  bonds,
		logger: logger,
	}
}

// CreateBond issues the project's bond token. Operator only.
// POST /api/projects/{id}/bond
func (h *BondHandler) CreateBond(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	b, err := h.bonds.Create(r.Context(), caller, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// GetBond returns the project's bond record.
// GET /api/projects/{id}/bond
func (h *BondHandler) GetBond(w http.ResponseWriter, r *http.Request) {
	b, err := h.bonds.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type purchaseBondRequest struct {
	Collateral string `json:"collateral"`
}

// PurchaseBond buys bond units with collateral during the funding phase.
// POST /api/projects/{id}/bond/purchase
func (h *BondHandler) PurchaseBond(w http.ResponseWriter, r *http.Request) {
	buyer, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req purchaseBondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	collateral, err := parseAmount("collateral", req.Collateral)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	holding, err := h.bonds.Purchase(r.Context(), pathParam(r, "id"), buyer, collateral)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, holding)
}

type transferBondRequest struct {
	To    string `json:"to"`
	Units string `json:"units"`
}

// TransferBond moves bond units from the caller to another holder.
// POST /api/projects/{id}/bond/transfer
func (h *BondHandler) TransferBond(w http.ResponseWriter, r *http.Request) {
	from, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req transferBondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	to, err := parseHexAddress("to", req.To)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	units, err := parseAmount("units", req.Units)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	projectID := pathParam(r, "id")
	if err := h.bonds.Transfer(r.Context(), projectID, from, to, units); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

// GetHolding returns one holder's bond balance for a project.
// GET /api/projects/{id}/bond/holdings/{address}
func (h *BondHandler) GetHolding(w http.ResponseWriter, r *http.Request) {
	holder, err := parseHexAddress("address", pathParam(r, "address"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	holding, err := h.bonds.Holding(r.Context(), pathParam(r, "id"), holder)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, holding)
}
