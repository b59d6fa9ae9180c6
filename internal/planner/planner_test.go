package planner_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewguard/engine/internal/planner"
)

// tokens builds a patch string weighing approximately n tokens under the
// default 3.5 chars-per-token heuristic.
func tokens(n int) string {
	return strings.Repeat("x", int(float64(n)*3.5)-4)
}

func opts(maxTokens int) planner.Options {
	o := planner.DefaultOptions()
	o.MaxTokensPerBatch = maxTokens
	return o
}

func TestEmptyChangeSetZeroBatches(t *testing.T) {
	plan := planner.PlanBatches(nil, planner.DefaultOptions())

	assert.Empty(t, plan.Batches)
	assert.Equal(t, planner.DefaultContextMapTokens, plan.ContextMapTokens)
}

func TestSingleBatchKeepsChangeOrder(t *testing.T) {
	files := []planner.ChangedFile{
		{Path: "a.go", Patch: tokens(200)},
		{Path: "b.go", Patch: tokens(400)},
		{Path: "c.go", Patch: tokens(600)},
	}

	plan := planner.PlanBatches(files, opts(5000))

	require.Len(t, plan.Batches, 1)
	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, plan.Batches[0].Files)
	assert.False(t, plan.Batches[0].Oversize)
}

func TestGreedyFillSplitsAtBudget(t *testing.T) {
	files := []planner.ChangedFile{
		{Path: "f1.go", Patch: tokens(3000)},
		{Path: "f2.go", Patch: tokens(3000)},
		{Path: "f3.go", Patch: tokens(3000)},
	}

	plan := planner.PlanBatches(files, opts(5000))

	require.Len(t, plan.Batches, 3)
	for i, b := range plan.Batches {
		assert.Equal(t, i, b.Index)
		assert.Len(t, b.Files, 1)
	}
}

func TestOversizeFileGetsOwnFlaggedBatch(t *testing.T) {
	files := []planner.ChangedFile{
		{Path: "small.go", Patch: tokens(100)},
		{Path: "huge.go", Patch: tokens(9000)},
		{Path: "tail.go", Patch: tokens(100)},
	}

	plan := planner.PlanBatches(files, opts(5000))

	require.Len(t, plan.Batches, 3)
	assert.Equal(t, []string{"small.go"}, plan.Batches[0].Files)
	assert.Equal(t, []string{"huge.go"}, plan.Batches[1].Files)
	assert.True(t, plan.Batches[1].Oversize)
	assert.Equal(t, []string{"tail.go"}, plan.Batches[2].Files)
	assert.False(t, plan.Batches[2].Oversize)
}

func TestFlattenRoundTrip(t *testing.T) {
	files := []planner.ChangedFile{
		{Path: "f1.go", Patch: tokens(4000)},
		{Path: "f2.go", Patch: tokens(4000)},
		{Path: "f3.go", Patch: tokens(9000)},
		{Path: "f4.go", Patch: tokens(2000)},
		{Path: "f5.go", Patch: tokens(2000)},
	}

	plan := planner.PlanBatches(files, opts(5000))

	var want []string
	for _, f := range files {
		want = append(want, f.Path)
	}
	assert.Equal(t, want, plan.Flatten())
}

func TestDeterministicOutput(t *testing.T) {
	files := []planner.ChangedFile{
		{Path: "a.go", Patch: tokens(2500)},
		{Path: "b.go", Patch: tokens(2500)},
		{Path: "c.go", Patch: tokens(2500)},
	}

	first := planner.PlanBatches(files, opts(5000))
	second := planner.PlanBatches(files, opts(5000))

	assert.Equal(t, first, second)
}

func TestByteRatioWeigher(t *testing.T) {
	w := planner.NewByteRatioWeigher(3.5)
	assert.Equal(t, 1, w.Weight(""))
	assert.Equal(t, int(float64(35)/3.5)+1, w.Weight(strings.Repeat("y", 35)))

	fallback := planner.NewByteRatioWeigher(0)
	assert.Equal(t, planner.DefaultCharsPerToken, fallback.CharsPerToken)
}
