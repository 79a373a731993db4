package store

import (
	"context"
	"errors"

	"github.com/yourorg/shotdeck/pkg/types"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// ModelUsage is the usage of one model summed over every stored run.
type ModelUsage struct {
	Model            string  `json:"model"`
	Calls            int     `json:"stages"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Artifacts        int     `json:"images"`
	CostUSD          float64 `json:"cost_usd"`
}

type Store interface {
	SaveRun(ctx context.Context, r *types.RunReport) error
	GetRun(ctx context.Context, id string) (*types.Run, error)
	ListRuns(ctx context.Context, batchID string) ([]types.Run, error)
	DeleteRun(ctx context.Context, id string) error

	GetOutcomes(ctx context.Context, runID string) ([]types.GenerationOutcome, error)
	GetStages(ctx context.Context, runID string) ([]types.StageUsage, error)
	UsageByModel(ctx context.Context) ([]ModelUsage, error)

	Close() error
}
