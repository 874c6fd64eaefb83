package workouts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"

	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/telemetry/tracing"
)

const importedSheetTitle = "Imported Workout"

// Advisor is the AI collaborator producing sheet analyses and exercise substitutions.
type Advisor interface {
	Insights(ctx context.Context, sheet Sheet, siblings []Sheet) (*InsightData, error)
	Substitute(ctx context.Context, exerciseName, sheetTitle string) (*Substitution, error)
}

type Service struct {
	store          RecordStore
	advisor        Advisor
	metricsManager *metrics.Manager

	now   func() time.Time
	newID func() string
}

// NewService panics on a nil store or metrics manager. A nil advisor disables insights and substitutions.
func NewService(store RecordStore, advisor Advisor, metricsManager *metrics.Manager) *Service {
	if store == nil {
		panic("workouts: nil record store")
	}
	if metricsManager == nil {
		panic("workouts: nil metrics manager")
	}
	return &Service{
		store:          store,
		advisor:        advisor,
		metricsManager: metricsManager,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

type LinkOutcome string

const (
	LinkOutcomeLinked         LinkOutcome = "linked"
	LinkOutcomeNothingToLink  LinkOutcome = "nothing_to_link"
	LinkOutcomeAlreadyGrouped LinkOutcome = "already_grouped"
)

type LinkResult struct {
	Outcome LinkOutcome `json:"outcome"`
	GroupID string      `json:"groupId,omitempty"`
	Linked  int         `json:"linked"`
}

type ImportResult struct {
	GroupID    string      `json:"groupId"`
	Sheets     []Sheet     `json:"sheets"`
	HistoryLog *HistoryLog `json:"historyLog,omitempty"`
	Skipped    int         `json:"skipped"`
}

func (s *Service) ListSheets(ctx context.Context, owner string, onlyValid bool) (_ []Sheet, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.sheets.list")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	if owner == "" {
		return nil, ErrNoOwner
	}

	sheets, err := s.store.ListSheets(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	SortSheets(sheets)
	if onlyValid {
		return ValidSheets(sheets), nil
	}
	return sheets, nil
}

func (s *Service) ListHistoryLogs(ctx context.Context, owner string) (_ []HistoryLog, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.history.list")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	if owner == "" {
		return nil, ErrNoOwner
	}

	logs, err := s.store.ListHistoryLogs(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list history logs: %w", err)
	}
	SortHistoryLogs(logs)
	return logs, nil
}

// HistorySheets returns the sheets of the program imported with the given history log.
func (s *Service) HistorySheets(ctx context.Context, owner, historyLogID string) (_ *HistoryLog, _ []Sheet, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.history.sheets")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	if owner == "" {
		return nil, nil, ErrNoOwner
	}

	historyLog, err := s.store.GetHistoryLog(ctx, owner, historyLogID)
	if err != nil {
		return nil, nil, fmt.Errorf("get history log: %w", err)
	}
	sheets, err := s.store.ListSheets(ctx, owner)
	if err != nil {
		return nil, nil, fmt.Errorf("list sheets: %w", err)
	}
	SortSheets(sheets)
	return historyLog, ProgramSheets(sheets, *historyLog), nil
}

// Activate makes sheetID the owner's active sheet, deactivating the current one first.
// An empty sheetID only deactivates. The two writes are not atomic: observers may briefly
// see zero or two active sheets, the last write wins.
func (s *Service) Activate(ctx context.Context, owner, sheetID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.activate")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("sheet-id", sheetID))

	if owner == "" {
		return ErrNoOwner
	}

	sheets, err := s.store.ListSheets(ctx, owner)
	if err != nil {
		return fmt.Errorf("list sheets: %w", err)
	}

	if sheetID != "" {
		found := false
		for _, sheet := range sheets {
			if sheet.ID == sheetID {
				found = true
				break
			}
		}
		if !found {
			return ErrSheetNotFound
		}
	}

	if err := s.deactivateOthers(ctx, owner, sheets, sheetID); err != nil {
		return err
	}

	if sheetID != "" {
		active := true
		if err := s.store.UpdateSheet(ctx, owner, sheetID, SheetPatch{IsActive: &active}); err != nil {
			log.Errorf("activate sheet [%s]: %s", sheetID, err)
			return fmt.Errorf("activate sheet %s: %w", sheetID, err)
		}
	}

	s.metricsManager.CounterActivations.Inc()
	return nil
}

// CreateSheet persists a new sheet. The owner's first sheet is always created active. Later
// sheets are inactive unless isActiveOverride says otherwise, in which case the currently active
// sheet is deactivated first.
func (s *Service) CreateSheet(ctx context.Context, owner string, data NewSheet, isActiveOverride *bool) (_ *Sheet, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.sheets.create")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	if owner == "" {
		return nil, ErrNoOwner
	}

	sheets, err := s.store.ListSheets(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}

	isActive := len(sheets) == 0
	if !isActive && isActiveOverride != nil && *isActiveOverride {
		if err := s.deactivateOthers(ctx, owner, sheets, ""); err != nil {
			return nil, err
		}
		isActive = true
	}

	return s.createSheet(ctx, owner, data, isActive, s.now())
}

// deactivateOthers clears the active flag of every active sheet except keepID.
func (s *Service) deactivateOthers(ctx context.Context, owner string, sheets []Sheet, keepID string) error {
	inactive := false
	for _, sheet := range sheets {
		if !sheet.IsActive || sheet.ID == keepID {
			continue
		}
		if err := s.store.UpdateSheet(ctx, owner, sheet.ID, SheetPatch{IsActive: &inactive}); err != nil {
			log.Errorf("deactivate sheet [%s] of %s: %s", sheet.ID, owner, err)
			return fmt.Errorf("deactivate sheet %s: %w", sheet.ID, err)
		}
	}
	return nil
}

func (s *Service) createSheet(ctx context.Context, owner string, data NewSheet, isActive bool, createdAt time.Time) (*Sheet, error) {
	title := strings.TrimSpace(data.Title)
	if title == "" {
		title = DefaultSheetTitle
	}

	sheet := Sheet{
		ID:        s.newID(),
		OwnerID:   owner,
		Title:     title,
		CreatedAt: createdAt,
		Exercises: s.withExerciseIDs(data.Exercises),
		IsActive:  isActive,
		GroupID:   data.GroupID,
		PDFURL:    data.Document.URL,
		PDFName:   data.Document.Name,
	}
	if err := s.store.CreateSheet(ctx, sheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	s.metricsManager.CounterSheetsCreated.Inc()
	return &sheet, nil
}

// ImportBatch persists the drafts that have exercises as one program: every sheet shares a fresh
// group id, and a single history log carrying the same group id and document is created once all
// sheets are written. Sheets written before a failure are kept.
func (s *Service) ImportBatch(ctx context.Context, owner string, drafts []Draft, doc SourceDocument) (_ *ImportResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.import")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.Int("drafts", len(drafts)))

	if owner == "" {
		return nil, ErrNoOwner
	}

	toImport := make([]Draft, 0, len(drafts))
	for _, d := range drafts {
		if len(d.Exercises) > 0 {
			toImport = append(toImport, d)
		}
	}
	if len(toImport) == 0 {
		return nil, ErrNothingToImport
	}

	existing, err := s.store.ListSheets(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	ownerHadNoSheets := len(existing) == 0

	// the history log id doubles as the group id
	groupID := s.newID()
	result := &ImportResult{
		GroupID: groupID,
		Skipped: len(drafts) - len(toImport),
	}

	batchStart := s.now()
	created := make([]*Sheet, len(toImport))
	var (
		wg       sync.WaitGroup
		errsMu   sync.Mutex
		batchErr error
	)
	for i, d := range toImport {
		wg.Add(1)
		go func(i int, d Draft) {
			defer wg.Done()
			title := strings.TrimSpace(d.Title)
			if title == "" {
				title = importedSheetTitle
			}
			// keep the draft order when sorting by creation time
			createdAt := batchStart.Add(time.Duration(i) * time.Millisecond)
			sheet, err := s.createSheet(ctx, owner, NewSheet{
				Title:     title,
				Exercises: d.Exercises,
				GroupID:   groupID,
				Document:  doc,
			}, ownerHadNoSheets && i == 0, createdAt)
			if err != nil {
				log.Errorf("import [%s]: create sheet [%s]: %s", groupID, title, err)
				errsMu.Lock()
				batchErr = multierr.Append(batchErr, err)
				errsMu.Unlock()
				return
			}
			created[i] = sheet
		}(i, d)
	}
	wg.Wait()

	for _, sheet := range created {
		if sheet != nil {
			result.Sheets = append(result.Sheets, *sheet)
		}
	}

	if batchErr != nil {
		s.metricsManager.CounterImports.With(prometheus.Labels{"outcome": "partial_failure"}).Inc()
		return result, fmt.Errorf("import batch %s: %w", groupID, batchErr)
	}

	historyLog := HistoryLog{
		ID:      groupID,
		OwnerID: owner,
		Title:   ProgramHistoryTitle,
		Date:    s.now(),
		PDFURL:  doc.URL,
		PDFName: doc.Name,
		GroupID: groupID,
	}
	if err := s.store.CreateHistoryLog(ctx, historyLog); err != nil {
		s.metricsManager.CounterImports.With(prometheus.Labels{"outcome": "history_failure"}).Inc()
		log.Errorf("import [%s]: create history log: %s", groupID, err)
		return result, fmt.Errorf("create history log: %w", err)
	}
	result.HistoryLog = &historyLog

	s.metricsManager.CounterImports.With(prometheus.Labels{"outcome": "ok"}).Inc()
	return result, nil
}

// LinkOrphans groups every sheet without a group id under the given history log.
// It cannot tell apart several ungrouped imports: all current orphans go to this one log.
func (s *Service) LinkOrphans(ctx context.Context, owner, historyLogID string) (_ LinkResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.history.linkorphans")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("history-log-id", historyLogID))

	if owner == "" {
		return LinkResult{}, ErrNoOwner
	}

	historyLog, err := s.store.GetHistoryLog(ctx, owner, historyLogID)
	if err != nil {
		return LinkResult{}, fmt.Errorf("get history log: %w", err)
	}
	if historyLog.GroupID != "" {
		s.metricsManager.CounterLinkOrphans.With(prometheus.Labels{"outcome": string(LinkOutcomeAlreadyGrouped)}).Inc()
		return LinkResult{Outcome: LinkOutcomeAlreadyGrouped, GroupID: historyLog.GroupID}, nil
	}

	sheets, err := s.store.ListSheets(ctx, owner)
	if err != nil {
		return LinkResult{}, fmt.Errorf("list sheets: %w", err)
	}
	var orphans []Sheet
	for _, sheet := range sheets {
		if sheet.GroupID == "" {
			orphans = append(orphans, sheet)
		}
	}
	if len(orphans) == 0 {
		s.metricsManager.CounterLinkOrphans.With(prometheus.Labels{"outcome": string(LinkOutcomeNothingToLink)}).Inc()
		return LinkResult{Outcome: LinkOutcomeNothingToLink}, nil
	}

	groupID := historyLog.ID
	if err := s.store.UpdateHistoryLog(ctx, owner, historyLog.ID, HistoryPatch{GroupID: &groupID}); err != nil {
		return LinkResult{}, fmt.Errorf("set history log group: %w", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		linkErr error
		linked  int
	)
	for _, orphan := range orphans {
		wg.Add(1)
		go func(sheetID string) {
			defer wg.Done()
			err := s.store.UpdateSheet(ctx, owner, sheetID, SheetPatch{GroupID: &groupID})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Errorf("link orphans [%s]: update sheet [%s]: %s", groupID, sheetID, err)
				linkErr = multierr.Append(linkErr, err)
				return
			}
			linked++
		}(orphan.ID)
	}
	wg.Wait()

	result := LinkResult{Outcome: LinkOutcomeLinked, GroupID: groupID, Linked: linked}
	if linkErr != nil {
		return result, fmt.Errorf("link orphans: %w", linkErr)
	}

	s.metricsManager.CounterLinkOrphans.With(prometheus.Labels{"outcome": string(LinkOutcomeLinked)}).Inc()
	return result, nil
}

// MigrateOwnership assigns every unowned sheet and history log to owner. Running it again is a no-op.
func (s *Service) MigrateOwnership(ctx context.Context, owner string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.migrateownership")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	if owner == "" {
		return 0, ErrNoOwner
	}

	unowned, err := s.store.ListUnowned(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unowned records: %w", err)
	}
	if unowned.Len() == 0 {
		return 0, nil
	}

	assigned, err := s.store.AssignOwner(ctx, owner, unowned)
	if err != nil {
		return 0, fmt.Errorf("assign owner: %w", err)
	}

	log.Infof("ownership migration: %d records assigned to [%s]", assigned, owner)
	s.metricsManager.CounterMigratedRecords.Add(float64(assigned))
	return assigned, nil
}

// UpdateSheet applies a user edit. An edit may not leave the sheet without exercises.
func (s *Service) UpdateSheet(ctx context.Context, owner, sheetID string, update SheetUpdate) (_ *Sheet, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.sheets.update")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	if owner == "" {
		return nil, ErrNoOwner
	}

	sheet, err := s.store.GetSheet(ctx, owner, sheetID)
	if err != nil {
		return nil, fmt.Errorf("get sheet: %w", err)
	}

	patch := SheetPatch{}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			title = DefaultSheetTitle
		}
		patch.Title = &title
		sheet.Title = title
	}
	if update.Exercises != nil {
		if len(*update.Exercises) == 0 {
			return nil, ErrEmptySheet
		}
		exercises := s.withExerciseIDs(*update.Exercises)
		patch.Exercises = &exercises
		sheet.Exercises = exercises
	}
	if patch.Title == nil && patch.Exercises == nil {
		return sheet, nil
	}

	if err := s.store.UpdateSheet(ctx, owner, sheetID, patch); err != nil {
		return nil, fmt.Errorf("update sheet: %w", err)
	}
	return sheet, nil
}

// DeleteSheet removes a single sheet. Its history log and group siblings are kept.
func (s *Service) DeleteSheet(ctx context.Context, owner, sheetID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.sheets.delete")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	if owner == "" {
		return ErrNoOwner
	}
	if err := s.store.DeleteSheet(ctx, owner, sheetID); err != nil {
		return fmt.Errorf("delete sheet: %w", err)
	}
	return nil
}

// AttachHistoryDocument sets the source document of an existing history log.
func (s *Service) AttachHistoryDocument(ctx context.Context, owner, historyLogID string, doc SourceDocument) (_ *HistoryLog, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.history.attachdocument")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	if owner == "" {
		return nil, ErrNoOwner
	}

	historyLog, err := s.store.GetHistoryLog(ctx, owner, historyLogID)
	if err != nil {
		return nil, fmt.Errorf("get history log: %w", err)
	}
	if err := s.store.UpdateHistoryLog(ctx, owner, historyLogID, HistoryPatch{Document: &doc}); err != nil {
		return nil, fmt.Errorf("update history log: %w", err)
	}

	historyLog.PDFURL = doc.URL
	historyLog.PDFName = doc.Name
	return historyLog, nil
}

// GenerateInsights returns the sheet's stored insights, or asks the advisor for new ones
// when there are none yet or force is set. New insights are stored on the sheet.
func (s *Service) GenerateInsights(ctx context.Context, owner, sheetID string, force bool) (_ *InsightData, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.sheets.insights")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.Bool("force", force))

	if owner == "" {
		return nil, ErrNoOwner
	}

	sheets, err := s.store.ListSheets(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	var target *Sheet
	for i := range sheets {
		if sheets[i].ID == sheetID {
			target = &sheets[i]
			break
		}
	}
	if target == nil {
		return nil, ErrSheetNotFound
	}
	if !target.Valid() {
		return nil, ErrEmptySheet
	}
	if target.Insights != nil && !force {
		return target.Insights, nil
	}
	if s.advisor == nil {
		return nil, ErrNoResult
	}

	insights, err := s.advisor.Insights(ctx, *target, SiblingContext(*target, sheets))
	if err != nil {
		return nil, fmt.Errorf("generate insights: %w", errors.Join(ErrNoResult, err))
	}
	if insights == nil {
		return nil, ErrNoResult
	}

	if err := s.store.UpdateSheet(ctx, owner, sheetID, SheetPatch{Insights: insights}); err != nil {
		return nil, fmt.Errorf("store insights: %w", err)
	}
	return insights, nil
}

// Substitute asks the advisor for one alternative to an exercise of the given sheet.
func (s *Service) Substitute(ctx context.Context, owner, sheetID, exerciseName string) (_ *Substitution, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.sheets.substitute")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	if owner == "" {
		return nil, ErrNoOwner
	}

	sheet, err := s.store.GetSheet(ctx, owner, sheetID)
	if err != nil {
		return nil, fmt.Errorf("get sheet: %w", err)
	}
	if s.advisor == nil {
		return nil, ErrNoResult
	}

	substitution, err := s.advisor.Substitute(ctx, exerciseName, sheet.Title)
	if err != nil {
		return nil, fmt.Errorf("substitute exercise: %w", errors.Join(ErrNoResult, err))
	}
	if substitution == nil || strings.TrimSpace(substitution.Suggestion) == "" {
		return nil, ErrNoResult
	}
	return substitution, nil
}

// AdvanceWorkout moves a guided session on the active sheet one set forward.
// Finishing the last set of the last exercise deactivates the sheet.
func (s *Service) AdvanceWorkout(ctx context.Context, owner string, progress Progress) (_ Progress, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.workout.advance")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	if owner == "" {
		return Progress{}, ErrNoOwner
	}

	sheets, err := s.store.ListSheets(ctx, owner)
	if err != nil {
		return Progress{}, fmt.Errorf("list sheets: %w", err)
	}
	active, ok := ActiveSheet(sheets)
	if !ok || !active.Valid() {
		return Progress{}, ErrNoActiveSheet
	}
	if progress.SheetID != "" && progress.SheetID != active.ID {
		return Progress{}, ErrNoActiveSheet
	}

	next := progress.Next(active)
	if next.Finished {
		if err := s.Activate(ctx, owner, ""); err != nil {
			return Progress{}, fmt.Errorf("finish workout: %w", err)
		}
	}
	return next, nil
}

func (s *Service) withExerciseIDs(exercises []Exercise) []Exercise {
	withIDs := make([]Exercise, len(exercises))
	for i, e := range exercises {
		if e.ID == "" {
			e.ID = s.newID()
		}
		withIDs[i] = e
	}
	return withIDs
}

// NewExercise is the template for a manually added exercise.
func NewExercise() Exercise {
	return Exercise{
		ID:   uuid.NewString(),
		Name: NewExerciseName,
		Sets: SetsOf(DefaultSets),
		Reps: DefaultReps,
	}
}

// SortSheets orders sheets by creation time, oldest first.
func SortSheets(sheets []Sheet) {
	sort.SliceStable(sheets, func(i, j int) bool {
		return sheets[i].CreatedAt.Before(sheets[j].CreatedAt)
	})
}

// SortHistoryLogs orders history logs by date, newest first.
func SortHistoryLogs(logs []HistoryLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Date.After(logs[j].Date)
	})
}
