package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/infrabond/core/internal/domain"
)

// OracleService defines the methods the oracle handler requires from the
// milestone aggregator.
type OracleService interface {
	SetupMilestones(ctx context.Context, caller common.Address, projectID string, descriptions []string, targetDates []time.Time) ([]domain.Milestone, error)
	VerifyMilestone(ctx context.Context, caller common.Address, projectID string, index int, verified bool, evidenceURI string, dataSources []string, confidence int) (domain.Milestone, error)
	MarkFailed(ctx context.Context, caller common.Address, projectID, reason string) error
	FailOverdue(ctx context.Context, caller common.Address, now time.Time) ([]string, error)
	Progress(ctx context.Context, projectID string) (completed, total int, err error)
	Milestones(ctx context.Context, projectID string) ([]domain.Milestone, error)
}

// OracleHandler serves milestone verification HTTP endpoints.
type OracleHandler struct {
	oracle OracleService
	logger *slog.Logger
}

// NewOracleHandler creates an OracleHandler with the given service and logger.
func NewOracleHandler(oracle OracleService, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{
		oracle: oracle,
		logger: logger,
	}
}

type setupMilestonesRequest struct {
	Descriptions []string    `json:"descriptions"`
	TargetDates  []time.Time `json:"target_dates"`
}

// SetupMilestones attaches the one-time milestone schedule to a project.
// Oracle only.
// POST /api/projects/{id}/milestones
func (h *OracleHandler) SetupMilestones(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req setupMilestonesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	ms, err := h.oracle.SetupMilestones(r.Context(), caller, pathParam(r, "id"), req.Descriptions, req.TargetDates)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"milestones": ms})
}

// ListMilestones returns a project's milestone schedule.
// GET /api/projects/{id}/milestones
func (h *OracleHandler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	ms, err := h.oracle.Milestones(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"milestones": ms})
}

// GetProgress returns completed/total milestone counts.
// GET /api/projects/{id}/progress
func (h *OracleHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	completed, total, err := h.oracle.Progress(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"completed": completed,
		"total":     total,
	})
}

type verifyMilestoneRequest struct {
	Verified    bool     `json:"verified"`
	EvidenceURI string   `json:"evidence_uri"`
	DataSources []string `json:"data_sources"`
	Confidence  int      `json:"confidence"`
}

// VerifyMilestone records an oracle verdict for one milestone. Oracle only.
// POST /api/projects/{id}/milestones/{index}/verify
func (h *OracleHandler) VerifyMilestone(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	index, err := strconv.Atoi(pathParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid milestone index")
		return
	}

	var req verifyMilestoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	m, err := h.oracle.VerifyMilestone(r.Context(), caller, pathParam(r, "id"), index,
		req.Verified, req.EvidenceURI, req.DataSources, req.Confidence)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type markFailedRequest struct {
	Reason string `json:"reason"`
}

// MarkFailed fails a project and settles its market NO. Oracle only.
// POST /api/projects/{id}/fail
func (h *OracleHandler) MarkFailed(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req markFailedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := h.oracle.MarkFailed(r.Context(), caller, pathParam(r, "id"), req.Reason); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "failed"})
}

// FailOverdue sweeps active projects whose final milestone is past the
// grace window and fails them. Oracle only.
// POST /api/oracle/fail-overdue
func (h *OracleHandler) FailOverdue(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAddress(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	failed, err := h.oracle.FailOverdue(r.Context(), caller, time.Now())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if failed == nil {
		failed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"failed": failed})
}
