package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/infrabond/core/internal/auth"
	"github.com/infrabond/core/internal/domain"
	"github.com/infrabond/core/internal/events"
)

// AdminHandler serves role management endpoints. Role changes are operator
// gated and emitted as events so the indexer sees capability changes.
type AdminHandler struct {
	roles   *auth.Roles
	emitter *events.Emitter
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(roles *auth.Roles, emitter *events.Emitter, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		roles:   roles,
		emitter: emitter,
		logger:  logger,
	}
}

type roleRequest struct {
	Account string `json:"account"`
	Role    string `json:"role"`
}

func parseRole(s string) (auth.Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(auth.RoleOracle):
		return auth.RoleOracle, nil
	case string(auth.RoleOperator):
		return auth.RoleOperator, nil
	default:
		return "", fmt.Errorf("unknown role %q: %w", s, domain.ErrValidation)
	}
}

// GrantRole grants a role to an account. Operator only.
// POST /api/admin/roles/grant
func (h *AdminHandler) GrantRole(w http.ResponseWriter, r *http.Request) {
	h.applyRoleChange(w, r, true)
}

// RevokeRole revokes a role from an account. Operator only.
// POST /api/admin/roles/revoke
func (h *AdminHandler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	h.applyRoleChange(w, r, false)
}

func (h *AdminHandler) applyRoleChange(w http.ResponseWriter, r *http.Request, grant bool) {
	caller, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := h.roles.Require(caller, auth.RoleOperator); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	account, err := parseHexAddress("account", req.Account)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	role, err := parseRole(req.Role)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	eventType := domain.EventRoleGranted
	status := "granted"
	if grant {
		h.roles.Grant(account, role)
	} else {
		h.roles.Revoke(account, role)
		eventType = domain.EventRoleRevoked
		status = "revoked"
	}

	h.emitter.Emit(r.Context(), eventType, "", "", map[string]any{
		"account": account.Hex(),
		"role":    string(role),
		"by":      caller.Hex(),
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"account": account.Hex(),
		"role":    string(role),
	})
}
