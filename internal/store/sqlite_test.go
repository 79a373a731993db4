package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/shotdeck/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "shotdeck.db"))
	require.NoError(t, err)
	return s
}

func sampleReport(id, batch string, created time.Time) *types.RunReport {
	return &types.RunReport{
		RunID:           id,
		BatchID:         batch,
		Mode:            "top",
		MainImage:       "catalog/" + batch + "/main.jpg",
		PromptsUsed:     2,
		ImagesGenerated: 1,
		Failed:          1,
		Results: []types.GenerationOutcome{
			{Index: 1, Label: "Hero", ArtifactPaths: []string{"/out/01_Hero.png"}, Usage: types.Usage{PromptTokens: 300, OutputArtifactCount: 1}},
			{Index: 2, Label: "Cart", ArtifactPaths: []string{}, Error: "no artifacts produced"},
		},
		Stages: []types.StageUsage{
			{Stage: "prompts", Model: "text-model", Usage: types.Usage{PromptTokens: 1000, CompletionTokens: 2000}, Cost: types.CostBreakdown{Total: 0.01}},
			{Stage: "generate", Model: "image-model", Usage: types.Usage{PromptTokens: 300, OutputArtifactCount: 1}, Cost: types.CostBreakdown{Total: 0.05}},
		},
		Usage:     types.Usage{PromptTokens: 1300, CompletionTokens: 2000},
		Cost:      types.CostBreakdown{Total: 0.06},
		OutputDir: "/out",
		CreatedAt: created,
	}
}

func TestRunCRUD(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, sampleReport("r1", "P1", time.Now().UTC())))
	run, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartial, run.Status)
	assert.Equal(t, 3300, run.TotalTokens)
	assert.Equal(t, 1, run.Failed)

	outcomes, err := s.GetOutcomes(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, []string{"/out/01_Hero.png"}, outcomes[0].ArtifactPaths)
	assert.Equal(t, "no artifacts produced", outcomes[1].Error)
	assert.Equal(t, 300, outcomes[0].Usage.PromptTokens, "outcome usage restored")

	stages, err := s.GetStages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "prompts", stages[0].Stage)
	assert.Equal(t, 0.05, stages[1].Cost.Total)
}

func TestSaveRunReplaces(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	r := sampleReport("r1", "P1", time.Now().UTC())
	require.NoError(t, s.SaveRun(ctx, r))
	r.Results = r.Results[:1]
	r.Failed = 0
	require.NoError(t, s.SaveRun(ctx, r))

	run, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, run.Status)
	outcomes, err := s.GetOutcomes(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, outcomes, 1, "outcomes replaced")
}

func TestListRunsNewestFirstAndByBatch(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, sampleReport("a", "P1", base)))
	require.NoError(t, s.SaveRun(ctx, sampleReport("b", "P2", base.Add(time.Minute))))
	require.NoError(t, s.SaveRun(ctx, sampleReport("c", "P1", base.Add(2*time.Minute))))

	all, err := s.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)

	p1, err := s.ListRuns(ctx, "P1")
	require.NoError(t, err)
	assert.Len(t, p1, 2)
}

func TestDeleteRunCascades(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, sampleReport("r1", "P1", time.Now().UTC())))
	require.NoError(t, s.DeleteRun(ctx, "r1"))

	_, err := s.GetRun(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	outcomes, _ := s.GetOutcomes(ctx, "r1")
	assert.Empty(t, outcomes)
	stages, _ := s.GetStages(ctx, "r1")
	assert.Empty(t, stages)
	assert.ErrorIs(t, s.DeleteRun(ctx, "r1"), ErrNotFound, "second delete")
}

func TestUsageByModel(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, sampleReport("r1", "P1", time.Now().UTC())))
	require.NoError(t, s.SaveRun(ctx, sampleReport("r2", "P1", time.Now().UTC())))

	usage, err := s.UsageByModel(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, "image-model", usage[0].Model)
	assert.Equal(t, 2, usage[0].Calls)
	assert.Equal(t, 2, usage[0].Artifacts)
	assert.Equal(t, 2000, usage[1].PromptTokens)
	assert.Equal(t, 4000, usage[1].CompletionTokens)
}

func TestConcurrentReadWrite(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.SaveRun(ctx, sampleReport(fmt.Sprintf("run-%d", i), "P1", time.Now().UTC()))
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.ListRuns(ctx, "")
		}()
	}
	wg.Wait()

	runs, err := s.ListRuns(ctx, "P1")
	require.NoError(t, err)
	assert.NotEmpty(t, runs)
}
