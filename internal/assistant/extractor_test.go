package assistant

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/workouts"
)

const extractionAnswer = `{
  "workouts": [
    {
      "title": "Sheet A: Chest and Triceps",
      "exercises": [
        {"name": "Bench Press", "sets": 4, "reps": "8-10", "weight": "60kg", "notes": "pause at the bottom"},
        {"name": "", "sets": "", "reps": 12},
        {"name": "Dips", "sets": {"weird": true}}
      ]
    },
    {
      "exercises": [
        {"name": "Squat", "sets": "5", "reps": "5"}
      ]
    },
    {"title": "Rest Day", "exercises": []}
  ]
}`

func TestExtractor_Extract(t *testing.T) {
	fake := newFakeOpenAI(t, extractionAnswer)
	metricsManager := metrics.NewTestManager()
	extractor := NewExtractor(fake.client(), "", 1, metricsManager)

	drafts, err := extractor.Extract(context.Background(), "  A: bench 4x8-10 60kg ...  ")
	require.NoError(t, err)
	require.Len(t, drafts, 3)
	lastReq, _ := fake.last()
	assert.Equal(t, DefaultExtractionModel, lastReq.Model)
	assert.Equal(t, "A: bench 4x8-10 60kg ...", lastReq.Messages[1].Content)

	first := drafts[0]
	assert.Equal(t, "Sheet A: Chest and Triceps", first.Title)
	require.Len(t, first.Exercises, 3)
	assert.Equal(t, "Bench Press", first.Exercises[0].Name)
	assert.Equal(t, workouts.SetsOf(4), first.Exercises[0].Sets)
	assert.Equal(t, "8-10", first.Exercises[0].Reps)
	assert.Equal(t, "60kg", first.Exercises[0].Weight)
	assert.Equal(t, "pause at the bottom", first.Exercises[0].Notes)

	// defaults
	assert.Equal(t, "Exercise 2", first.Exercises[1].Name)
	assert.Equal(t, workouts.SetsOf(workouts.DefaultSets), first.Exercises[1].Sets)
	assert.Equal(t, "12", first.Exercises[1].Reps)
	assert.Empty(t, first.Exercises[1].Weight)
	assert.Empty(t, first.Exercises[1].Notes)
	assert.Equal(t, workouts.SetsOf(workouts.DefaultSets), first.Exercises[2].Sets)
	assert.Equal(t, workouts.DefaultReps, first.Exercises[2].Reps)

	assert.Equal(t, "Workout 2", drafts[1].Title)
	assert.Equal(t, workouts.SetsText("5"), drafts[1].Exercises[0].Sets)
	assert.Empty(t, drafts[2].Exercises)

	ids := map[string]bool{}
	for _, d := range drafts {
		for _, ex := range d.Exercises {
			require.NotEmpty(t, ex.ID)
			ids[ex.ID] = true
		}
	}
	assert.Len(t, ids, 4)

	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterAICalls.WithLabelValues(kindExtract, "ok")))
}

func TestExtractor_Extract_CachedAnswerGetsFreshIDs(t *testing.T) {
	fake := newFakeOpenAI(t, extractionAnswer)
	metricsManager := metrics.NewTestManager()
	extractor := NewExtractor(fake.client(), "gpt-4o-mini", 1, metricsManager)
	ctx := context.Background()

	first, err := extractor.Extract(ctx, "same text")
	require.NoError(t, err)
	second, err := extractor.Extract(ctx, "same text")
	require.NoError(t, err)

	assert.Equal(t, int32(1), fake.calls.Load())
	require.Equal(t, len(first), len(second))
	assert.Equal(t, first[0].Title, second[0].Title)
	assert.Equal(t, first[0].Exercises[0].Name, second[0].Exercises[0].Name)
	assert.NotEqual(t, first[0].Exercises[0].ID, second[0].Exercises[0].ID)
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterAICalls.WithLabelValues(kindExtract, "cached")))

	_, err = extractor.Extract(ctx, "other text")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestExtractor_Extract_Errors(t *testing.T) {
	ctx := context.Background()

	fake := newFakeOpenAI(t, extractionAnswer)
	extractor := NewExtractor(fake.client(), "", 1, nil)
	_, err := extractor.Extract(ctx, " \n\t ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, fake.calls.Load())

	fake.setStatus(http.StatusInternalServerError)
	drafts, err := extractor.Extract(ctx, "bench 3x10")
	assert.ErrorIs(t, err, ErrNoResult)
	assert.ErrorIs(t, err, workouts.ErrNoResult)
	assert.Nil(t, drafts)

	broken := newFakeOpenAI(t, `["not", "an", "object"]`)
	_, err = NewExtractor(broken.client(), "", 1, nil).Extract(ctx, "bench 3x10")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestExtractor_Extract_FailuresAreNotCached(t *testing.T) {
	fake := newFakeOpenAI(t, extractionAnswer)
	fake.setStatus(http.StatusBadGateway)
	extractor := NewExtractor(fake.client(), "", 1, nil)
	ctx := context.Background()

	_, err := extractor.Extract(ctx, "bench 3x10")
	require.ErrorIs(t, err, ErrNoResult)

	fake.setStatus(http.StatusOK)
	drafts, err := extractor.Extract(ctx, "bench 3x10")
	require.NoError(t, err)
	assert.NotEmpty(t, drafts)
	assert.Equal(t, int32(2), fake.calls.Load())
}
