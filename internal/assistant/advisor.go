package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/telemetry/tracing"
	"github.com/2beens/gymsheets/internal/workouts"
)

const (
	kindInsights   = "insights"
	kindSubstitute = "substitute"

	adviceSystemPrompt = "You are a fitness assistant. Answer with strict, clean JSON only."
)

const insightsPromptTemplate = `You are a high performance coach analysing workout sheets.
You get one target sheet and some of the user's other sheets.
Answer STRICTLY with a parseable JSON object in exactly this format, keys in English:
{
  "totalVolume": "short estimate of weekly sets and reps (e.g. 'About 240 reps/week')",
  "muscleDistribution": { "Chest": 20, "Back": 30 },
  "classification": "training style (e.g. Strength, Hypertrophy ABCD, Full Body)",
  "issuesDetected": ["main muscle imbalances or missing/excess volume, empty if none"],
  "historicalComparison": "short comparison with the other sheets",
  "coachTips": ["essential tips for the exercises of this sheet"],
  "estimatedRPE": "intensity estimate (e.g. 'High intensity', 'Metabolic focus')",
  "exerciseDiversity": "short analysis of angle, machine and free weight variation",
  "periodizationTip": "short periodization suggestion"
}
muscleDistribution values are integers adding up to 100.

TARGET SHEET:
Title: %s
Exercises: %s

OTHER SHEETS FOR COMPARISON:
%s
`

const substitutionPromptTemplate = `You are a high performance coach.
The user is looking at the workout sheet %q and wants ONE replacement for the exercise %q.
Suggest a viable alternative working the same muscles and answer STRICTLY with a parseable JSON object, keys in English:
{
  "suggestion": "replacement exercise name",
  "reason": "why it is a good swap",
  "execution": "one quick execution cue"
}`

var _ workouts.Advisor = (*Advisor)(nil)

// Advisor produces insights and exercise substitutions for sheets.
type Advisor struct {
	client         chatCompleter
	model          string
	metricsManager *metrics.Manager
}

func NewAdvisor(client chatCompleter, model string, metricsManager *metrics.Manager) *Advisor {
	if model == "" {
		model = DefaultAdviceModel
	}
	return &Advisor{
		client:         client,
		model:          model,
		metricsManager: metricsManager,
	}
}

type siblingSummary struct {
	Title     string              `json:"title"`
	Exercises []workouts.Exercise `json:"exercises"`
}

func (a *Advisor) Insights(ctx context.Context, sheet workouts.Sheet, siblings []workouts.Sheet) (_ *workouts.InsightData, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "assistant.advisor.insights")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	if !sheet.Valid() {
		return nil, workouts.ErrEmptySheet
	}

	exercisesJSON, err := json.Marshal(sheet.Exercises)
	if err != nil {
		return nil, fmt.Errorf("marshal exercises: %w", err)
	}
	// bounded prompt, at most 5 exercises per sibling
	summaries := make([]siblingSummary, 0, len(siblings))
	for _, s := range workouts.SiblingContext(sheet, siblings) {
		summaries = append(summaries, siblingSummary{Title: s.Title, Exercises: s.Exercises})
	}
	siblingsJSON, err := json.Marshal(summaries)
	if err != nil {
		return nil, fmt.Errorf("marshal siblings: %w", err)
	}

	prompt := fmt.Sprintf(insightsPromptTemplate, sheet.Title, exercisesJSON, siblingsJSON)

	begin := time.Now()
	content, err := a.client.CompleteJSON(ctx, a.model, adviceSystemPrompt, prompt)
	if err != nil {
		observeAICall(a.metricsManager, kindInsights, "error", time.Since(begin))
		return nil, fmt.Errorf("%w: %w", ErrNoResult, err)
	}

	insights, err := decodeInsights(content)
	if err != nil {
		observeAICall(a.metricsManager, kindInsights, "error", time.Since(begin))
		return nil, fmt.Errorf("%w: %w", ErrNoResult, err)
	}
	observeAICall(a.metricsManager, kindInsights, "ok", time.Since(begin))
	return insights, nil
}

func (a *Advisor) Substitute(ctx context.Context, exerciseName, sheetTitle string) (_ *workouts.Substitution, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "assistant.advisor.substitute")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	prompt := fmt.Sprintf(substitutionPromptTemplate, sheetTitle, exerciseName)

	begin := time.Now()
	content, err := a.client.CompleteJSON(ctx, a.model, adviceSystemPrompt, prompt)
	if err != nil {
		observeAICall(a.metricsManager, kindSubstitute, "error", time.Since(begin))
		return nil, fmt.Errorf("%w: %w", ErrNoResult, err)
	}

	var parsed struct {
		Suggestion looseString `json:"suggestion"`
		Reason     looseString `json:"reason"`
		Execution  looseString `json:"execution"`
	}
	if err := json.Unmarshal(content, &parsed); err != nil {
		observeAICall(a.metricsManager, kindSubstitute, "error", time.Since(begin))
		return nil, fmt.Errorf("%w: unmarshal substitution: %w", ErrNoResult, err)
	}
	observeAICall(a.metricsManager, kindSubstitute, "ok", time.Since(begin))

	return &workouts.Substitution{
		Suggestion: strings.TrimSpace(string(parsed.Suggestion)),
		Reason:     string(parsed.Reason),
		Execution:  string(parsed.Execution),
	}, nil
}

// decodeInsights tolerates missing or oddly typed fields; only a non-object
// answer is an error.
func decodeInsights(content []byte) (*workouts.InsightData, error) {
	var parsed struct {
		TotalVolume          looseString            `json:"totalVolume"`
		MuscleDistribution   map[string]looseString `json:"muscleDistribution"`
		Classification       looseString            `json:"classification"`
		IssuesDetected       looseStrings           `json:"issuesDetected"`
		HistoricalComparison looseString            `json:"historicalComparison"`
		CoachTips            looseStrings           `json:"coachTips"`
		EstimatedRPE         looseString            `json:"estimatedRPE"`
		ExerciseDiversity    looseString            `json:"exerciseDiversity"`
		PeriodizationTip     looseString            `json:"periodizationTip"`
	}
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal insights: %w", err)
	}

	distribution := make(map[string]int, len(parsed.MuscleDistribution))
	for muscle, share := range parsed.MuscleDistribution {
		value := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(string(share)), "%"))
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		distribution[muscle] = int(math.Round(f))
	}

	insights := &workouts.InsightData{
		TotalVolume:          string(parsed.TotalVolume),
		MuscleDistribution:   distribution,
		Classification:       string(parsed.Classification),
		IssuesDetected:       []string(parsed.IssuesDetected),
		HistoricalComparison: string(parsed.HistoricalComparison),
		CoachTips:            []string(parsed.CoachTips),
		EstimatedRPE:         string(parsed.EstimatedRPE),
		ExerciseDiversity:    string(parsed.ExerciseDiversity),
		PeriodizationTip:     string(parsed.PeriodizationTip),
	}
	if insights.IssuesDetected == nil {
		insights.IssuesDetected = []string{}
	}
	if insights.CoachTips == nil {
		insights.CoachTips = []string{}
	}
	return insights, nil
}
