package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/infrabond/core/internal/domain"
)

// ProjectStore implements domain.ProjectStore using PostgreSQL.
type ProjectStore struct {
	pool *pgxpool.Pool
}

// NewProjectStore creates a new ProjectStore backed by the given connection pool.
func NewProjectStore(pool *pgxpool.Pool) *ProjectStore {
	return &ProjectStore{pool: pool}
}

const projectCols = `id, sponsor, metadata_uri, funding_goal, funding_raised,
	bond_price, status, fail_reason, bond_id, market_id, created_at, updated_at`

// Insert adds a project record.
func (s *ProjectStore) Insert(ctx context.Context, p domain.Project) error {
	const query = `
		INSERT INTO projects (
			id, sponsor, metadata_uri, funding_goal, funding_raised,
			bond_price, status, fail_reason, bond_id, market_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Sponsor.Hex(), p.MetadataURI,
		p.FundingGoal, p.FundingRaised, p.BondPrice,
		string(p.Status), p.FailReason, p.BondID, p.MarketID,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert project %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces an existing project record.
func (s *ProjectStore) Update(ctx context.Context, p domain.Project) error {
	const query = `
		UPDATE projects SET
			sponsor = $2, metadata_uri = $3, funding_goal = $4,
			funding_raised = $5, bond_price = $6, status = $7,
			fail_reason = $8, bond_id = $9, market_id = $10, updated_at = $11
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Sponsor.Hex(), p.MetadataURI,
		p.FundingGoal, p.FundingRaised, p.BondPrice,
		string(p.Status), p.FailReason, p.BondID, p.MarketID, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update project %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

func scanProject(row pgx.Row) (domain.Project, error) {
	var p domain.Project
	var sponsor, status string
	err := row.Scan(
		&p.ID, &sponsor, &p.MetadataURI,
		&p.FundingGoal, &p.FundingRaised, &p.BondPrice,
		&status, &p.FailReason, &p.BondID, &p.MarketID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Project{}, err
	}
	p.Sponsor = common.HexToAddress(sponsor)
	p.Status = domain.ProjectStatus(status)
	return p, nil
}

// Get retrieves a project by ID.
func (s *ProjectStore) Get(ctx context.Context, id string) (domain.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectCols+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Project{}, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
		}
		return domain.Project{}, fmt.Errorf("postgres: get project %s: %w", id, err)
	}
	return p, nil
}

// List returns projects ordered by creation time descending.
func (s *ProjectStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Project, error) {
	query := `SELECT ` + projectCols + ` FROM projects ORDER BY created_at DESC, id`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list projects rows: %w", err)
	}
	return projects, nil
}

// MilestoneStore implements domain.MilestoneStore using PostgreSQL.
type MilestoneStore struct {
	pool *pgxpool.Pool
}

// NewMilestoneStore creates a new MilestoneStore backed by the given connection pool.
func NewMilestoneStore(pool *pgxpool.Pool) *MilestoneStore {
	return &MilestoneStore{pool: pool}
}

// InsertBatch stores the full milestone set for a project. One-time per
// project: any existing row makes the whole batch fail.
func (s *MilestoneStore) InsertBatch(ctx context.Context, ms []domain.Milestone) error {
	if len(ms) == 0 {
		return fmt.Errorf("empty milestone batch: %w", domain.ErrValidation)
	}
	projectID := ms[0].ProjectID

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin milestone batch: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM milestones WHERE project_id = $1)", projectID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check milestones for %s: %w", projectID, err)
	}
	if exists {
		return fmt.Errorf("milestones for project %s: %w", projectID, domain.ErrStateConflict)
	}

	const query = `
		INSERT INTO milestones (
			project_id, idx, description, target_date, completed,
			completed_at, evidence_uri, data_sources, confidence
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, m := range ms {
		if _, err := tx.Exec(ctx, query,
			m.ProjectID, m.Index, m.Description, m.TargetDate,
			m.Completed, m.CompletedAt, m.EvidenceURI, m.DataSources, m.Confidence,
		); err != nil {
			return fmt.Errorf("postgres: insert milestone %s[%d]: %w", m.ProjectID, m.Index, err)
		}
	}
	return tx.Commit(ctx)
}

// Update replaces one milestone, addressed by (project, index).
func (s *MilestoneStore) Update(ctx context.Context, m domain.Milestone) error {
	const query = `
		UPDATE milestones SET
			description = $3, target_date = $4, completed = $5,
			completed_at = $6, evidence_uri = $7, data_sources = $8, confidence = $9
		WHERE project_id = $1 AND idx = $2`

	tag, err := s.pool.Exec(ctx, query,
		m.ProjectID, m.Index, m.Description, m.TargetDate,
		m.Completed, m.CompletedAt, m.EvidenceURI, m.DataSources, m.Confidence,
	)
	if err != nil {
		return fmt.Errorf("postgres: update milestone %s[%d]: %w", m.ProjectID, m.Index, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("milestone %s[%d]: %w", m.ProjectID, m.Index, domain.ErrNotFound)
	}
	return nil
}

// ListByProject returns the project's milestones in index order.
func (s *MilestoneStore) ListByProject(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	const query = `
		SELECT project_id, idx, description, target_date, completed,
			completed_at, evidence_uri, data_sources, confidence
		FROM milestones WHERE project_id = $1 ORDER BY idx`

	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list milestones for %s: %w", projectID, err)
	}
	defer rows.Close()

	var ms []domain.Milestone
	for rows.Next() {
		var m domain.Milestone
		if err := rows.Scan(
			&m.ProjectID, &m.Index, &m.Description, &m.TargetDate,
			&m.Completed, &m.CompletedAt, &m.EvidenceURI, &m.DataSources, &m.Confidence,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan milestone: %w", err)
		}
		ms = append(ms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list milestones rows: %w", err)
	}
	return ms, nil
}
