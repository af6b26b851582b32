package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/infrabond/core/internal/domain"
)

// ProjectService defines the methods the project handler requires from the
// registry. Declared locally so the handler package does not depend on the
// concrete service implementation.
type ProjectService interface {
	Register(ctx context.Context, sponsor common.Address, metadataURI string, fundingGoal, bondPrice decimal.Decimal) (domain.Project, error)
	OpenFunding(ctx context.Context, caller common.Address, projectID string) (domain.Project, error)
	UpdateStatus(ctx context.Context, caller common.Address, projectID string, status domain.ProjectStatus, reason string) (domain.Project, error)
	Get(ctx context.Context, projectID string) (domain.Project, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Project, error)
}

// ProjectHandler serves project registry HTTP endpoints.
type ProjectHandler struct {
	projects ProjectService
	logger   *slog.Logger
}

// NewProjectHandler creates a ProjectHandler with the given service and logger.
func NewProjectHandler(projects ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{
		projects: projects,
		logger:   logger,
	}
}

type registerProjectRequest struct {
	MetadataURI string `json:"metadata_uri"`
	FundingGoal string `json:"funding_goal"`
	BondPrice   string `json:"bond_price"`
}

// RegisterProject creates a new project with the caller as sponsor.
// POST /api/projects
func (h *ProjectHandler) RegisterProject(w http.ResponseWriter, r *http.Request) {
	sponsor, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req registerProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	goal, err := parseAmount("funding_goal", req.FundingGoal)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	price, err := parseAmount("bond_price", req.BondPrice)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	p, err := h.projects.Register(r.Context(), sponsor, req.MetadataURI, goal, price)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// listProjectsResponse wraps the list endpoint output with paging metadata.
type listProjectsResponse struct {
	Projects []domain.Project `json:"projects"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// ListProjects returns projects with pagination.
// GET /api/projects?limit=50&offset=0
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	projects, err := h.projects.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listProjectsResponse{
		Projects: projects,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// GetProject returns a single project by its ID.
// GET /api/projects/{id}
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	p, err := h.projects.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// OpenFunding transitions a pending project to the funding phase.
// POST /api/projects/{id}/open-funding
func (h *ProjectHandler) OpenFunding(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	p, err := h.projects.OpenFunding(r.Context(), caller, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// UpdateStatus applies an explicit lifecycle transition.
// POST /api/projects/{id}/status
func (h *ProjectHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	p, err := h.projects.UpdateStatus(r.Context(), caller, pathParam(r, "id"), domain.ProjectStatus(req.Status), req.Reason)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
