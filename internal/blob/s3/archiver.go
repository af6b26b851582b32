package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/infrabond/core/internal/domain"
)

// MarketSource is the narrow market read surface the archiver needs.
type MarketSource interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
}

// TradeSource is the narrow trade read surface the archiver needs.
type TradeSource interface {
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error)
}

// Archiver exports resolved markets to object storage: the full trade log
// as JSONL plus a resolution summary. Exports are idempotent; a market
// whose archive object already exists is skipped. Records are never
// deleted from the primary store here.
type Archiver struct {
	writer  *Writer
	reader  *Reader
	markets MarketSource
	trades  TradeSource
	logger  *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(c *Client, markets MarketSource, trades TradeSource, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  NewWriter(c),
		reader:  NewReader(c),
		markets: markets,
		trades:  trades,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// tradesPath is the S3 key for a market's trade-log export.
//
//	archive/markets/<marketID>/trades.jsonl
func tradesPath(marketID string) string {
	return fmt.Sprintf("archive/markets/%s/trades.jsonl", marketID)
}

func summaryPath(marketID string) string {
	return fmt.Sprintf("archive/markets/%s/summary.json", marketID)
}

// ExportMarket uploads a resolved market's trade log and summary. Returns
// the number of trades exported; zero with no error when the market was
// already archived.
func (a *Archiver) ExportMarket(ctx context.Context, m domain.Market) (int, error) {
	if !m.Resolved {
		return 0, fmt.Errorf("market %s not resolved: %w", m.ID, domain.ErrStateConflict)
	}

	exists, err := a.reader.Exists(ctx, summaryPath(m.ID))
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	trades, err := a.trades.ListByMarket(ctx, m.ID, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: export market %s trades: %w", m.ID, err)
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: export market %s marshal: %w", m.ID, err)
	}
	if err := a.writer.Put(ctx, tradesPath(m.ID), bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, err
	}

	summary, err := json.Marshal(map[string]any{
		"market_id":   m.ID,
		"project_id":  m.ProjectID,
		"question":    m.Question,
		"outcome":     m.Outcome,
		"resolved_at": m.ResolvedAt,
		"volume":      m.Volume.String(),
		"trades":      len(trades),
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: export market %s summary: %w", m.ID, err)
	}
	if err := a.writer.Put(ctx, summaryPath(m.ID), bytes.NewReader(summary), "application/json"); err != nil {
		return 0, err
	}

	a.logger.InfoContext(ctx, "market archived",
		slog.String("market_id", m.ID),
		slog.Int("trades", len(trades)),
	)
	return len(trades), nil
}

// Run sweeps resolved markets on a fixed interval until the context is
// cancelled. Intended for the app's errgroup.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.sweep(ctx); err != nil {
				a.logger.WarnContext(ctx, "archive sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Archiver) sweep(ctx context.Context) error {
	markets, err := a.markets.List(ctx, domain.ListOpts{})
	if err != nil {
		return err
	}
	for _, m := range markets {
		if !m.Resolved {
			continue
		}
		if _, err := a.ExportMarket(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
