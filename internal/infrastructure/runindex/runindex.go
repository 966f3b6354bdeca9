// Package runindex is the optional Postgres-backed run index (spec's
// supplemented "list runs across the fleet" operation): a searchable
// summary of every run a director has kicked off, adapted from the
// teacher's BunStore down to a single run_summaries table. Atomic Store
// remains the source of truth per run; this index exists only to answer
// "which runs exist and how did they finish" without walking RUN_DIR_ROOT.
package runindex

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/domain/errors"
)

// Index wraps a bun.DB connection for run_summaries.
type Index struct {
	db *bun.DB
}

// New opens a Postgres connection via the pgdriver/pgdialect stack. dsn is
// a standard postgres:// connection string.
func New(dsn string) *Index {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &Index{db: bun.NewDB(sqldb, pgdialect.New())}
}

// RunRecord is one row in run_summaries.
type RunRecord struct {
	bun.BaseModel `bun:"table:run_summaries,alias:r"`

	RunID      string    `bun:"run_id,pk"`
	Character  string    `bun:"character"`
	Move       string    `bun:"move"`
	RunStatus  string    `bun:"run_status"`
	StopReason string    `bun:"stop_reason"`
	Approved   int       `bun:"approved"`
	Rejected   int       `bun:"rejected"`
	Failed     int       `bun:"failed"`
	RetryRate  float64   `bun:"retry_rate"`
	RejectRate float64   `bun:"reject_rate"`
	RunDir     string    `bun:"run_dir"`
	UpdatedAt  time.Time `bun:"updated_at"`
}

// InitSchema creates run_summaries if it does not exist.
func (idx *Index) InitSchema(ctx context.Context) error {
	_, err := idx.db.NewCreateTable().Model((*RunRecord)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return errors.NewSystem(errors.CodeSysIO, "create run_summaries table", err)
	}
	return nil
}

// Upsert records or updates one run's summary row, keyed by run_id. The CLI
// calls it once, after the run has finished and summary.json is written.
func (idx *Index) Upsert(ctx context.Context, character, move, runDir string, summary domain.Summary) error {
	rec := &RunRecord{
		RunID:      summary.RunID,
		Character:  character,
		Move:       move,
		RunStatus:  string(summary.RunStatus),
		StopReason: summary.StopReason,
		Approved:   summary.Frames.Approved,
		Rejected:   summary.Frames.Rejected,
		Failed:     summary.Frames.Failed,
		RetryRate:  summary.Rates.RetryRate,
		RejectRate: summary.Rates.RejectRate,
		RunDir:     runDir,
		UpdatedAt:  time.Now().UTC(),
	}
	_, err := idx.db.NewInsert().Model(rec).On("CONFLICT (run_id) DO UPDATE").Exec(ctx)
	if err != nil {
		return errors.NewSystem(errors.CodeSysIO, "upsert run_summaries row", err)
	}
	return nil
}

// ListByCharacter returns every indexed run for a character, most recent
// first.
func (idx *Index) ListByCharacter(ctx context.Context, character string) ([]RunRecord, error) {
	var recs []RunRecord
	err := idx.db.NewSelect().Model(&recs).
		Where("character = ?", character).
		OrderExpr("updated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, errors.NewSystem(errors.CodeSysIO, "list run_summaries", err)
	}
	return recs, nil
}

// Close releases the underlying connection pool.
func (idx *Index) Close() error {
	return idx.db.Close()
}
