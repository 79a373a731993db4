package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yourorg/shotdeck/pkg/types"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.Init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA busy_timeout=5000;`); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			main_image TEXT NOT NULL,
			prompts_used INTEGER NOT NULL DEFAULT 0,
			prompts_reused INTEGER NOT NULL DEFAULT 0,
			images_generated INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			output_dir TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_batch ON runs(batch_id);`,
		`CREATE TABLE IF NOT EXISTS run_outcomes (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			label TEXT NOT NULL,
			images TEXT NOT NULL,
			error_msg TEXT NOT NULL,
			usage TEXT NOT NULL,
			PRIMARY KEY(run_id, idx)
		);`,
		`CREATE TABLE IF NOT EXISTS stage_usage (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			stage TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt_tokens INTEGER NOT NULL,
			completion_tokens INTEGER NOT NULL,
			artifacts INTEGER NOT NULL,
			cost_usd REAL NOT NULL,
			usage TEXT NOT NULL,
			cost TEXT NOT NULL,
			PRIMARY KEY(run_id, seq)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun stores r with its outcomes and stage usage. Saving a run id again
// replaces the previous record.
func (s *SQLiteStore) SaveRun(ctx context.Context, r *types.RunReport) error {
	if r == nil || r.RunID == "" {
		return errors.New("run report has no id")
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs(id,batch_id,mode,status,main_image,prompts_used,prompts_reused,images_generated,failed,total_tokens,cost_usd,output_dir,created_at)
	VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET batch_id=excluded.batch_id,mode=excluded.mode,status=excluded.status,main_image=excluded.main_image,prompts_used=excluded.prompts_used,prompts_reused=excluded.prompts_reused,images_generated=excluded.images_generated,failed=excluded.failed,total_tokens=excluded.total_tokens,cost_usd=excluded.cost_usd,output_dir=excluded.output_dir,created_at=excluded.created_at`,
		r.RunID, r.BatchID, r.Mode, r.Status(), r.MainImage, r.PromptsUsed, r.PromptsReused, r.ImagesGenerated, r.Failed, totalTokens(r.Usage), r.Cost.Total, r.OutputDir, created.UTC())
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_outcomes WHERE run_id=?`, r.RunID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stage_usage WHERE run_id=?`, r.RunID); err != nil {
		return err
	}

	outStmt, err := tx.PrepareContext(ctx, `INSERT INTO run_outcomes(run_id,idx,label,images,error_msg,usage) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer outStmt.Close()
	for _, o := range r.Results {
		images, _ := json.Marshal(o.ArtifactPaths)
		u, _ := json.Marshal(o.Usage)
		if _, err := outStmt.ExecContext(ctx, r.RunID, o.Index, o.Label, string(images), o.Error, string(u)); err != nil {
			return err
		}
	}

	stageStmt, err := tx.PrepareContext(ctx, `INSERT INTO stage_usage(run_id,seq,stage,model,prompt_tokens,completion_tokens,artifacts,cost_usd,usage,cost) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stageStmt.Close()
	for i, st := range r.Stages {
		u, _ := json.Marshal(st.Usage)
		c, _ := json.Marshal(st.Cost)
		if _, err := stageStmt.ExecContext(ctx, r.RunID, i, st.Stage, st.Model, st.Usage.PromptTokens, st.Usage.CompletionTokens, st.Usage.OutputArtifactCount, st.Cost.Total, string(u), string(c)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func totalTokens(u types.Usage) int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}

const runColumns = `id,batch_id,mode,status,main_image,prompts_used,images_generated,failed,total_tokens,cost_usd,output_dir,created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (types.Run, error) {
	var r types.Run
	err := row.Scan(&r.ID, &r.BatchID, &r.Mode, &r.Status, &r.MainImage, &r.PromptsUsed, &r.ImagesGenerated, &r.Failed, &r.TotalTokens, &r.CostUSD, &r.OutputDir, &r.CreatedAt)
	return r, err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*types.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns runs newest first. An empty batchID lists every batch.
func (s *SQLiteStore) ListRuns(ctx context.Context, batchID string) ([]types.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if batchID != "" {
		query += ` WHERE batch_id=?`
		args = append(args, batchID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_outcomes WHERE run_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stage_usage WHERE run_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetOutcomes(ctx context.Context, runID string) ([]types.GenerationOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT idx,label,images,error_msg,usage FROM run_outcomes WHERE run_id=? ORDER BY idx ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.GenerationOutcome, 0)
	for rows.Next() {
		var o types.GenerationOutcome
		var images, u string
		if err := rows.Scan(&o.Index, &o.Label, &images, &o.Error, &u); err != nil {
			return nil, err
		}
		if images != "" {
			_ = json.Unmarshal([]byte(images), &o.ArtifactPaths)
		}
		if u != "" {
			_ = json.Unmarshal([]byte(u), &o.Usage)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetStages(ctx context.Context, runID string) ([]types.StageUsage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage,model,usage,cost FROM stage_usage WHERE run_id=? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.StageUsage, 0)
	for rows.Next() {
		var st types.StageUsage
		var u, c string
		if err := rows.Scan(&st.Stage, &st.Model, &u, &c); err != nil {
			return nil, err
		}
		if u != "" {
			_ = json.Unmarshal([]byte(u), &st.Usage)
		}
		if c != "" {
			_ = json.Unmarshal([]byte(c), &st.Cost)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UsageByModel sums stage usage per model, ordered by model name.
func (s *SQLiteStore) UsageByModel(ctx context.Context) ([]ModelUsage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT model,COUNT(*),SUM(prompt_tokens),SUM(completion_tokens),SUM(artifacts),SUM(cost_usd) FROM stage_usage GROUP BY model ORDER BY model ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ModelUsage, 0)
	for rows.Next() {
		var m ModelUsage
		if err := rows.Scan(&m.Model, &m.Calls, &m.PromptTokens, &m.CompletionTokens, &m.Artifacts, &m.CostUSD); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}
