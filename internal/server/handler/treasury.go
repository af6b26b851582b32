package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TreasuryService defines the methods the treasury handler requires from the
// collateral ledger.
type TreasuryService interface {
	Deposit(ctx context.Context, caller, to common.Address, amount decimal.Decimal) error
	Balance(ctx context.Context, account string) (decimal.Decimal, error)
}

// TreasuryHandler serves collateral ledger HTTP endpoints.
type TreasuryHandler struct {
	treasury TreasuryService
	logger   *slog.Logger
}

// NewTreasuryHandler creates a TreasuryHandler with the given service and
// logger.
func NewTreasuryHandler(treasury TreasuryService, logger *slog.Logger) *TreasuryHandler {
	return &TreasuryHandler{
		treasury: treasury,
		logger:   logger,
	}
}

type depositRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Deposit credits collateral to an account. Operator only.
// POST /api/treasury/deposit
func (h *TreasuryHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	to, err := parseHexAddress("to", req.To)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := h.treasury.Deposit(r.Context(), caller, to, amount); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deposited"})
}

// GetBalance returns the collateral balance of any ledger account, address
// or vault.
// GET /api/treasury/balances/{account}
func (h *TreasuryHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := pathParam(r, "account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account")
		return
	}

	balance, err := h.treasury.Balance(r.Context(), account)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account,
		"balance": balance.String(),
	})
}
