package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coocood/freecache"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/telemetry/tracing"
	"github.com/2beens/gymsheets/internal/workouts"
	"github.com/2beens/gymsheets/pkg"
)

const (
	extractionCacheExpire = int(time.Hour / time.Second)
	minCacheSizeBytes     = 512 * 1024

	kindExtract = "extract"
)

// same sentinels as the workouts package, handlers match on either
var (
	ErrEmptyInput = workouts.ErrEmptyInput
	ErrNoResult   = workouts.ErrNoResult
)

const extractionSystemPrompt = `You extract gym workouts from free text, usually copied from a PDF or a chat message.
The text may contain ONE or MORE workout splits (for example "Sheet A", "Workout B", "Day 1").
Group the exercises into their splits and extract:
- the split name into "title"; if there is no explicit split, make up a descriptive title
- every exercise with its name, sets, reps and weight (if present)
- guidelines, execution cues or rest times tied to an exercise into "notes"

Always answer with ONLY a JSON object in exactly this format:
{
  "workouts": [
    {
      "title": "Split name",
      "exercises": [
        { "name": "Exercise name", "sets": "Sets", "reps": "Reps", "weight": "", "notes": "Notes or empty" }
      ]
    }
  ]
}`

type extractedExercise struct {
	Name   looseString     `json:"name"`
	Sets   json.RawMessage `json:"sets"`
	Reps   looseString     `json:"reps"`
	Weight looseString     `json:"weight"`
	Notes  looseString     `json:"notes"`
}

type extractedWorkout struct {
	Title     looseString         `json:"title"`
	Exercises []extractedExercise `json:"exercises"`
}

type extraction struct {
	Workouts []extractedWorkout `json:"workouts"`
}

// Extractor turns free text into workout drafts. Answers are cached by input,
// the drafts built from them are not: every call gets fresh exercise ids.
type Extractor struct {
	client         chatCompleter
	model          string
	cache          *freecache.Cache
	metricsManager *metrics.Manager
}

func NewExtractor(client chatCompleter, model string, cacheSizeMB int, metricsManager *metrics.Manager) *Extractor {
	if model == "" {
		model = DefaultExtractionModel
	}
	cacheSize := cacheSizeMB * 1024 * 1024
	if cacheSize < minCacheSizeBytes {
		cacheSize = minCacheSizeBytes
	}
	return &Extractor{
		client:         client,
		model:          model,
		cache:          freecache.NewCache(cacheSize),
		metricsManager: metricsManager,
	}
}

func (e *Extractor) Extract(ctx context.Context, text string) (_ []workouts.Draft, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "assistant.extractor.extract")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	cacheKey := []byte("extract::" + pkg.SHA256Hex([]byte(e.model+"\x00"+text)))
	if content, err := e.cache.Get(cacheKey); err == nil {
		if drafts, err := decodeExtraction(content); err == nil {
			log.Tracef("extraction found in cache [%d drafts]", len(drafts))
			span.SetAttributes(attribute.Bool("cached", true))
			observeAICall(e.metricsManager, kindExtract, "cached", 0)
			return drafts, nil
		} else {
			log.Errorf("failed to decode cached extraction: %s", err)
		}
	}

	begin := time.Now()
	content, err := e.client.CompleteJSON(ctx, e.model, extractionSystemPrompt, text)
	if err != nil {
		observeAICall(e.metricsManager, kindExtract, "error", time.Since(begin))
		return nil, fmt.Errorf("%w: %w", ErrNoResult, err)
	}

	drafts, err := decodeExtraction(content)
	if err != nil {
		observeAICall(e.metricsManager, kindExtract, "error", time.Since(begin))
		return nil, fmt.Errorf("%w: %w", ErrNoResult, err)
	}
	observeAICall(e.metricsManager, kindExtract, "ok", time.Since(begin))

	if err := e.cache.Set(cacheKey, content, extractionCacheExpire); err != nil {
		log.Errorf("failed to cache extraction: %s", err)
	}

	span.SetAttributes(attribute.Int("drafts", len(drafts)))
	return drafts, nil
}

// decodeExtraction maps the model answer to drafts, filling every missing field
// with its default.
func decodeExtraction(content []byte) ([]workouts.Draft, error) {
	var parsed extraction
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal extraction: %w", err)
	}

	drafts := make([]workouts.Draft, 0, len(parsed.Workouts))
	for wIdx, w := range parsed.Workouts {
		draft := workouts.Draft{
			Title:     w.Title.or("Workout " + strconv.Itoa(wIdx+1)),
			Exercises: make([]workouts.Exercise, 0, len(w.Exercises)),
		}
		for eIdx, ex := range w.Exercises {
			var sets workouts.Sets
			if err := json.Unmarshal(ex.Sets, &sets); err != nil || sets.IsZero() {
				sets = workouts.SetsOf(workouts.DefaultSets)
			}
			draft.Exercises = append(draft.Exercises, workouts.Exercise{
				ID:     uuid.NewString(),
				Name:   ex.Name.or("Exercise " + strconv.Itoa(eIdx+1)),
				Sets:   sets,
				Reps:   ex.Reps.or(workouts.DefaultReps),
				Weight: string(ex.Weight),
				Notes:  string(ex.Notes),
			})
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

func observeAICall(metricsManager *metrics.Manager, kind, outcome string, took time.Duration) {
	if metricsManager == nil {
		return
	}
	metricsManager.CounterAICalls.WithLabelValues(kind, outcome).Inc()
	if outcome != "cached" {
		metricsManager.HistogramAIDuration.WithLabelValues(kind).Observe(took.Seconds())
	}
}
