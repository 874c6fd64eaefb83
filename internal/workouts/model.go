package workouts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSets          = 3
	DefaultReps          = "10"
	DefaultSheetTitle    = "Untitled Workout"
	ProgramHistoryTitle  = "Full Program"
	NewExerciseName      = "New Exercise"
	maxSiblingsExercises = 5
)

// Sets is either a plain number of sets or a free-form text like "3-4".
type Sets struct {
	Count int
	Text  string
}

func SetsOf(n int) Sets {
	return Sets{Count: n}
}

func SetsText(s string) Sets {
	return Sets{Text: s}
}

func (s Sets) IsZero() bool {
	return s.Count == 0 && s.Text == ""
}

// Int returns the number of sets to walk through in a workout session.
// Text values are parsed by their leading integer ("4-5" is 4), falling back to DefaultSets.
func (s Sets) Int() int {
	if s.Text == "" {
		if s.Count > 0 {
			return s.Count
		}
		return DefaultSets
	}

	text := strings.TrimSpace(s.Text)
	end := 0
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(text[:end])
	if err != nil || n <= 0 {
		return DefaultSets
	}
	return n
}

func (s Sets) String() string {
	if s.Text != "" {
		return s.Text
	}
	return strconv.Itoa(s.Count)
}

func (s Sets) MarshalJSON() ([]byte, error) {
	if s.Text != "" {
		return json.Marshal(s.Text)
	}
	return json.Marshal(s.Count)
}

func (s *Sets) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = Sets{}
		return nil
	}

	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("sets: %w", err)
		}
		*s = Sets{Text: text}
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("sets: %w", err)
	}
	*s = Sets{Count: int(f)}
	return nil
}

type Exercise struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Sets   Sets   `json:"sets"`
	Reps   string `json:"reps"`
	Weight string `json:"weight,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// SourceDocument is the reference to an uploaded source file (usually a PDF).
// It is carried along with sheets and history logs and never inspected.
type SourceDocument struct {
	URL  string `json:"pdfUrl,omitempty"`
	Name string `json:"pdfName,omitempty"`
}

func (d SourceDocument) IsZero() bool {
	return d.URL == "" && d.Name == ""
}

type Sheet struct {
	ID        string       `json:"id"`
	OwnerID   string       `json:"ownerId,omitempty"`
	Title     string       `json:"title"`
	CreatedAt time.Time    `json:"createdAt"`
	Exercises []Exercise   `json:"exercises"`
	IsActive  bool         `json:"isActive"`
	GroupID   string       `json:"groupId,omitempty"`
	PDFURL    string       `json:"pdfUrl,omitempty"`
	PDFName   string       `json:"pdfName,omitempty"`
	Insights  *InsightData `json:"insights,omitempty"`
}

// Valid reports whether the sheet can be analyzed or used for a workout session.
func (s Sheet) Valid() bool {
	return len(s.Exercises) > 0
}

func (s Sheet) Document() SourceDocument {
	return SourceDocument{URL: s.PDFURL, Name: s.PDFName}
}

type HistoryLog struct {
	ID      string    `json:"id"`
	OwnerID string    `json:"ownerId,omitempty"`
	Title   string    `json:"title"`
	Date    time.Time `json:"date"`
	PDFURL  string    `json:"pdfUrl,omitempty"`
	PDFName string    `json:"pdfName,omitempty"`
	GroupID string    `json:"groupId,omitempty"`
}

func (h HistoryLog) Document() SourceDocument {
	return SourceDocument{URL: h.PDFURL, Name: h.PDFName}
}

type InsightData struct {
	TotalVolume          string         `json:"totalVolume"`
	MuscleDistribution   map[string]int `json:"muscleDistribution"`
	Classification       string         `json:"classification"`
	IssuesDetected       []string       `json:"issuesDetected"`
	HistoricalComparison string         `json:"historicalComparison"`
	CoachTips            []string       `json:"coachTips"`
	EstimatedRPE         string         `json:"estimatedRPE"`
	ExerciseDiversity    string         `json:"exerciseDiversity"`
	PeriodizationTip     string         `json:"periodizationTip"`
}

type Substitution struct {
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason"`
	Execution  string `json:"execution"`
}

// Draft is one extracted (and possibly user edited) workout, not yet persisted.
type Draft struct {
	Title     string     `json:"title"`
	Exercises []Exercise `json:"exercises"`
}

// NewSheet holds the caller supplied part of a sheet; ids, timestamps and activation are assigned on create.
type NewSheet struct {
	Title     string         `json:"title"`
	Exercises []Exercise     `json:"exercises"`
	GroupID   string         `json:"groupId,omitempty"`
	Document  SourceDocument `json:"document"`
}

// SheetUpdate is a user edit of a sheet's content.
type SheetUpdate struct {
	Title     *string     `json:"title,omitempty"`
	Exercises *[]Exercise `json:"exercises,omitempty"`
}

// SheetPatch is a partial write of a sheet record. Nil fields are left untouched.
type SheetPatch struct {
	Title     *string
	Exercises *[]Exercise
	IsActive  *bool
	GroupID   *string
	Insights  *InsightData
}

// HistoryPatch is a partial write of a history log record. Nil fields are left untouched.
type HistoryPatch struct {
	GroupID  *string
	Document *SourceDocument
}

// OwnerAssignment lists the unowned records to be claimed by one owner.
type OwnerAssignment struct {
	SheetIDs   []string
	HistoryIDs []string
}

func (a OwnerAssignment) Len() int {
	return len(a.SheetIDs) + len(a.HistoryIDs)
}

// ValidSheets returns the sheets that have at least one exercise.
func ValidSheets(sheets []Sheet) []Sheet {
	valid := make([]Sheet, 0, len(sheets))
	for _, s := range sheets {
		if s.Valid() {
			valid = append(valid, s)
		}
	}
	return valid
}

// ProgramSheets returns the sheets imported together with the given history log.
func ProgramSheets(sheets []Sheet, log HistoryLog) []Sheet {
	program := make([]Sheet, 0)
	if log.GroupID == "" {
		return program
	}
	for _, s := range sheets {
		if s.GroupID == log.GroupID {
			program = append(program, s)
		}
	}
	return program
}

// ActiveSheet returns the (at most one) active sheet of a snapshot.
// During the activation race two sheets may be active for a moment; the most recently created one wins.
func ActiveSheet(sheets []Sheet) (Sheet, bool) {
	var (
		active Sheet
		found  bool
	)
	for _, s := range sheets {
		if !s.IsActive {
			continue
		}
		if !found || !s.CreatedAt.Before(active.CreatedAt) {
			active = s
			found = true
		}
	}
	return active, found
}

// SiblingContext returns the other sheets trimmed to their first exercises, used as context for insights.
func SiblingContext(target Sheet, sheets []Sheet) []Sheet {
	siblings := make([]Sheet, 0, len(sheets))
	for _, s := range sheets {
		if s.ID == target.ID {
			continue
		}
		exercises := s.Exercises
		if len(exercises) > maxSiblingsExercises {
			exercises = exercises[:maxSiblingsExercises]
		}
		siblings = append(siblings, Sheet{
			ID:        s.ID,
			Title:     s.Title,
			Exercises: exercises,
		})
	}
	return siblings
}
