package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrabond/core/internal/domain"
)

func TestWriteServiceErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("bad input: %w", domain.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("missing: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("nope: %w", domain.ErrUnauthorized), http.StatusForbidden},
		{fmt.Errorf("already: %w", domain.ErrStateConflict), http.StatusConflict},
		{fmt.Errorf("broke: %w", domain.ErrInsufficientFunds), http.StatusUnprocessableEntity},
		{fmt.Errorf("short: %w", domain.ErrInsufficientShares), http.StatusUnprocessableEntity},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	logger := slog.New(slog.DiscardHandler)
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		writeServiceError(w, r, logger, tc.err)
		assert.Equal(t, tc.status, w.Code, "error %v", tc.err)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.NotEmpty(t, body["error"])
	}
}

func TestCallerAddress(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/test", nil)
	r.Header.Set("X-Account", "0x1111111111111111111111111111111111111111")

	addr, err := callerAddress(r)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), addr)

	r.Header.Set("X-Account", "nonsense")
	_, err = callerAddress(r)
	assert.ErrorIs(t, err, domain.ErrValidation)

	r.Header.Del("X-Account")
	_, err = callerAddress(r)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseSide(t *testing.T) {
	side, err := parseSide(" YES ")
	require.NoError(t, err)
	assert.Equal(t, domain.SideYes, side)

	_, err = parseSide("maybe")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseAmount(t *testing.T) {
	d, err := parseAmount("amount", "123.456")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("123.456")))

	_, err = parseAmount("amount", "12x")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseListOptsClampsLimit(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/test?limit=9999&offset=20", nil)
	opts := parseListOpts(r)
	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 20, opts.Offset)

	r = httptest.NewRequest(http.MethodGet, "/api/test", nil)
	opts = parseListOpts(r)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
}

// stubProjects is a minimal ProjectService for handler-level tests.
type stubProjects struct {
	project domain.Project
	err     error
}

func (s *stubProjects) Register(context.Context, common.Address, string, decimal.Decimal, decimal.Decimal) (domain.Project, error) {
	return s.project, s.err
}
func (s *stubProjects) OpenFunding(context.Context, common.Address, string) (domain.Project, error) {
	return s.project, s.err
}
func (s *stubProjects) UpdateStatus(context.Context, common.Address, string, domain.ProjectStatus, string) (domain.Project, error) {
	return s.project, s.err
}
func (s *stubProjects) Get(context.Context, string) (domain.Project, error) {
	return s.project, s.err
}
func (s *stubProjects) List(context.Context, domain.ListOpts) ([]domain.Project, error) {
	return []domain.Project{s.project}, s.err
}

func TestRegisterProjectRejectsMissingCaller(t *testing.T) {
	h := NewProjectHandler(&stubProjects{}, slog.New(slog.DiscardHandler))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/projects",
		strings.NewReader(`{"metadata_uri":"ipfs://x","funding_goal":"1000","bond_price":"10"}`))
	h.RegisterProject(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterProjectRejectsUnknownFields(t *testing.T) {
	h := NewProjectHandler(&stubProjects{}, slog.New(slog.DiscardHandler))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/projects",
		strings.NewReader(`{"metadata_uri":"ipfs://x","bogus":true}`))
	r.Header.Set("X-Account", "0x1111111111111111111111111111111111111111")
	h.RegisterProject(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterProjectHappyPath(t *testing.T) {
	stub := &stubProjects{project: domain.Project{ID: "p-1", Status: domain.ProjectPending}}
	h := NewProjectHandler(stub, slog.New(slog.DiscardHandler))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/projects",
		strings.NewReader(`{"metadata_uri":"ipfs://x","funding_goal":"1000","bond_price":"10"}`))
	r.Header.Set("X-Account", "0x1111111111111111111111111111111111111111")
	h.RegisterProject(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	var got domain.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "p-1", got.ID)
}
