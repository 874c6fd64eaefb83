package workouts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/gymsheets/internal/auth"
	"github.com/2beens/gymsheets/internal/middleware"
	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/telemetry/tracing"
	"github.com/2beens/gymsheets/pkg"
)

//go:generate mockgen -source=$GOFILE -destination=workouts_mocks_test.go -package=workouts_test

const DefaultStreamKeepAlive = 25 * time.Second

type workoutsService interface {
	ListSheets(ctx context.Context, owner string, onlyValid bool) ([]Sheet, error)
	ListHistoryLogs(ctx context.Context, owner string) ([]HistoryLog, error)
	HistorySheets(ctx context.Context, owner, historyLogID string) (*HistoryLog, []Sheet, error)
	Activate(ctx context.Context, owner, sheetID string) error
	CreateSheet(ctx context.Context, owner string, data NewSheet, isActiveOverride *bool) (*Sheet, error)
	ImportBatch(ctx context.Context, owner string, drafts []Draft, doc SourceDocument) (*ImportResult, error)
	LinkOrphans(ctx context.Context, owner, historyLogID string) (LinkResult, error)
	MigrateOwnership(ctx context.Context, owner string) (int, error)
	UpdateSheet(ctx context.Context, owner, sheetID string, update SheetUpdate) (*Sheet, error)
	DeleteSheet(ctx context.Context, owner, sheetID string) error
	AttachHistoryDocument(ctx context.Context, owner, historyLogID string, doc SourceDocument) (*HistoryLog, error)
	GenerateInsights(ctx context.Context, owner, sheetID string, force bool) (*InsightData, error)
	Substitute(ctx context.Context, owner, sheetID, exerciseName string) (*Substitution, error)
	AdvanceWorkout(ctx context.Context, owner string, progress Progress) (Progress, error)
}

type draftExtractor interface {
	Extract(ctx context.Context, text string) ([]Draft, error)
}

// Projection is the part of a Projector the stream endpoint needs.
type Projection interface {
	Start(ctx context.Context) error
	Stop()
	Changes() <-chan ProjectionState
}

type ProjectionFactory func(owner string) Projection

// NewProjectionFactory builds one projector per stream connection.
func NewProjectionFactory(store RecordStore, loadTimeout time.Duration, metricsManager *metrics.Manager) ProjectionFactory {
	return func(owner string) Projection {
		return NewProjector(store, owner, loadTimeout, metricsManager)
	}
}

type SheetsListResponse struct {
	Sheets []Sheet `json:"sheets"`
}

type HistoryListResponse struct {
	HistoryLogs []HistoryLog `json:"historyLogs"`
}

type HistorySheetsResponse struct {
	HistoryLog *HistoryLog `json:"historyLog"`
	Sheets     []Sheet     `json:"sheets"`
}

type DeleteSheetResponse struct {
	DeletedID string `json:"deletedId"`
}

type ActivateResponse struct {
	ActiveSheetID string `json:"activeSheetId"`
}

type MigrateResponse struct {
	Migrated int `json:"migrated"`
}

type ExtractRequest struct {
	Text string `json:"text"`
}

type ExtractResponse struct {
	Drafts []Draft `json:"drafts"`
}

type ImportRequest struct {
	Drafts   []Draft        `json:"drafts"`
	Document SourceDocument `json:"document"`
}

type SubstitutionRequest struct {
	Exercise string `json:"exercise"`
}

type Handler struct {
	service         workoutsService
	extractor       draftExtractor
	newProjection   ProjectionFactory
	streamKeepAlive time.Duration
}

func NewHandler(
	service workoutsService,
	extractor draftExtractor,
	newProjection ProjectionFactory,
	streamKeepAlive time.Duration,
) *Handler {
	if streamKeepAlive <= 0 {
		streamKeepAlive = DefaultStreamKeepAlive
	}
	return &Handler{
		service:         service,
		extractor:       extractor,
		newProjection:   newProjection,
		streamKeepAlive: streamKeepAlive,
	}
}

// SetupRoutes registers the sheets, history, import, workout and stream routes.
// Routes calling the AI collaborators are rate limited per owner.
func (handler *Handler) SetupRoutes(
	router *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	aiAllowedPerMin int,
	metricsManager *metrics.Manager,
) {
	router.HandleFunc("/sheets", handler.HandleListSheets).Methods("GET").Name("list-sheets")
	router.HandleFunc("/sheets", handler.HandleCreateSheet).Methods("POST").Name("create-sheet")
	router.HandleFunc("/sheets/deactivate", handler.HandleDeactivate).Methods("POST").Name("deactivate")
	router.HandleFunc("/sheets/{id}", handler.HandleUpdateSheet).Methods("PUT").Name("update-sheet")
	router.HandleFunc("/sheets/{id}", handler.HandleDeleteSheet).Methods("DELETE").Name("delete-sheet")
	router.HandleFunc("/sheets/{id}/activate", handler.HandleActivate).Methods("POST").Name("activate")

	router.HandleFunc("/import", handler.HandleImport).Methods("POST").Name("import")

	router.HandleFunc("/history", handler.HandleListHistory).Methods("GET").Name("list-history")
	router.HandleFunc("/history/{id}/sheets", handler.HandleHistorySheets).Methods("GET").Name("history-sheets")
	router.HandleFunc("/history/{id}/document", handler.HandleAttachDocument).Methods("PUT").Name("history-document")
	router.HandleFunc("/history/{id}/link-orphans", handler.HandleLinkOrphans).Methods("POST").Name("link-orphans")

	router.HandleFunc("/workout/progress", handler.HandleAdvanceWorkout).Methods("POST").Name("workout-progress")
	router.HandleFunc("/migrate/ownership", handler.HandleMigrateOwnership).Methods("POST").Name("migrate-ownership")
	router.HandleFunc("/stream", handler.HandleStream).Methods("GET").Name("stream")

	aiRouter := router.NewRoute().Subrouter()
	aiRouter.HandleFunc("/sheets/{id}/insights", handler.HandleInsights).Methods("POST").Name("insights")
	aiRouter.HandleFunc("/sheets/{id}/substitution", handler.HandleSubstitution).Methods("POST").Name("substitution")
	aiRouter.HandleFunc("/import/extract", handler.HandleExtract).Methods("POST").Name("extract")
	if rateLimiter != nil {
		aiRouter.Use(middleware.RateLimit(rateLimiter, "ai", aiAllowedPerMin, metricsManager))
	}
}

func (handler *Handler) HandleListSheets(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.sheets.list")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}

	onlyValid := r.URL.Query().Get("valid") == "true"
	sheets, err := handler.service.ListSheets(ctx, owner, onlyValid)
	if err != nil {
		writeServiceError(w, "list sheets", err)
		return
	}
	if sheets == nil {
		sheets = []Sheet{}
	}

	pkg.WriteJSON(w, SheetsListResponse{Sheets: sheets}, http.StatusOK)
}

func (handler *Handler) HandleCreateSheet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.sheets.create")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}

	var data NewSheet
	if !decodeJSONBody(w, r, &data) {
		return
	}

	sheet, err := handler.service.CreateSheet(ctx, owner, data, nil)
	if err != nil {
		writeServiceError(w, "create sheet", err)
		return
	}

	log.Debugf("new sheet created for %s: %s", owner, sheet.ID)
	pkg.WriteJSON(w, sheet, http.StatusCreated)
}

func (handler *Handler) HandleUpdateSheet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.sheets.update")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}
	sheetID := mux.Vars(r)["id"]

	var update SheetUpdate
	if !decodeJSONBody(w, r, &update) {
		return
	}

	sheet, err := handler.service.UpdateSheet(ctx, owner, sheetID, update)
	if err != nil {
		writeServiceError(w, "update sheet", err)
		return
	}

	pkg.WriteJSON(w, sheet, http.StatusOK)
}

func (handler *Handler) HandleDeleteSheet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.sheets.delete")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}
	sheetID := mux.Vars(r)["id"]

	if err := handler.service.DeleteSheet(ctx, owner, sheetID); err != nil {
		writeServiceError(w, "delete sheet", err)
		return
	}

	pkg.WriteJSON(w, DeleteSheetResponse{DeletedID: sheetID}, http.StatusOK)
}

func (handler *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.sheets.activate")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}
	sheetID := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("sheet.id", sheetID))

	if err := handler.service.Activate(ctx, owner, sheetID); err != nil {
		writeServiceError(w, "activate sheet", err)
		return
	}

	pkg.WriteJSON(w, ActivateResponse{ActiveSheetID: sheetID}, http.StatusOK)
}

func (handler *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.sheets.deactivate")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}

	if err := handler.service.Activate(ctx, owner, ""); err != nil {
		writeServiceError(w, "deactivate sheets", err)
		return
	}

	pkg.WriteJSON(w, ActivateResponse{}, http.StatusOK)
}

func (handler *Handler) HandleInsights(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.sheets.insights")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}
	sheetID := mux.Vars(r)["id"]
	force := r.URL.Query().Get("force") == "true"

	insights, err := handler.service.GenerateInsights(ctx, owner, sheetID, force)
	if err != nil {
		writeServiceError(w, "generate insights", err)
		return
	}

	pkg.WriteJSON(w, insights, http.StatusOK)
}

func (handler *Handler) HandleSubstitution(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.sheets.substitution")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}
	sheetID := mux.Vars(r)["id"]

	var req SubstitutionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Exercise == "" {
		http.Error(w, "error, exercise empty", http.StatusBadRequest)
		return
	}

	sub, err := handler.service.Substitute(ctx, owner, sheetID, req.Exercise)
	if err != nil {
		writeServiceError(w, "substitute exercise", err)
		return
	}

	pkg.WriteJSON(w, sub, http.StatusOK)
}

func (handler *Handler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.import.extract")
	defer span.End()

	if _, ok := ownerOrUnauthorized(w, r); !ok {
		return
	}
	if handler.extractor == nil {
		http.Error(w, "extraction not available", http.StatusServiceUnavailable)
		return
	}

	var req ExtractRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	drafts, err := handler.extractor.Extract(ctx, req.Text)
	if err != nil {
		if errors.Is(err, ErrEmptyInput) {
			http.Error(w, "error, text empty", http.StatusBadRequest)
			return
		}
		writeServiceError(w, "extract drafts", err)
		return
	}
	if drafts == nil {
		drafts = []Draft{}
	}

	pkg.WriteJSON(w, ExtractResponse{Drafts: drafts}, http.StatusOK)
}

// HandleImport answers 207 with the partial result when only some drafts were stored.
func (handler *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.import")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req ImportRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := handler.service.ImportBatch(ctx, owner, req.Drafts, req.Document)
	if err != nil {
		if result != nil && len(result.Sheets) > 0 {
			log.Errorf("import for %s partially failed [%d sheets stored]: %s", owner, len(result.Sheets), err)
			pkg.WriteJSON(w, result, http.StatusMultiStatus)
			return
		}
		writeServiceError(w, "import drafts", err)
		return
	}

	log.Debugf("import for %s done: %d sheets in group %s", owner, len(result.Sheets), result.GroupID)
	pkg.WriteJSON(w, result, http.StatusCreated)
}

func (handler *Handler) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.history.list")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}

	logs, err := handler.service.ListHistoryLogs(ctx, owner)
	if err != nil {
		writeServiceError(w, "list history", err)
		return
	}
	if logs == nil {
		logs = []HistoryLog{}
	}

	pkg.WriteJSON(w, HistoryListResponse{HistoryLogs: logs}, http.StatusOK)
}

func (handler *Handler) HandleHistorySheets(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.history.sheets")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}
	logID := mux.Vars(r)["id"]

	historyLog, sheets, err := handler.service.HistorySheets(ctx, owner, logID)
	if err != nil {
		writeServiceError(w, "history sheets", err)
		return
	}
	if sheets == nil {
		sheets = []Sheet{}
	}

	pkg.WriteJSON(w, HistorySheetsResponse{HistoryLog: historyLog, Sheets: sheets}, http.StatusOK)
}

func (handler *Handler) HandleAttachDocument(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.history.document")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}
	logID := mux.Vars(r)["id"]

	var doc SourceDocument
	if !decodeJSONBody(w, r, &doc) {
		return
	}
	if doc.URL == "" {
		http.Error(w, "error, document url empty", http.StatusBadRequest)
		return
	}

	historyLog, err := handler.service.AttachHistoryDocument(ctx, owner, logID, doc)
	if err != nil {
		writeServiceError(w, "attach document", err)
		return
	}

	pkg.WriteJSON(w, historyLog, http.StatusOK)
}

func (handler *Handler) HandleLinkOrphans(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.history.linkorphans")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}
	logID := mux.Vars(r)["id"]

	result, err := handler.service.LinkOrphans(ctx, owner, logID)
	if err != nil {
		writeServiceError(w, "link orphans", err)
		return
	}

	pkg.WriteJSON(w, result, http.StatusOK)
}

func (handler *Handler) HandleAdvanceWorkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.workout.progress")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}

	var progress Progress
	if !decodeJSONBody(w, r, &progress) {
		return
	}

	next, err := handler.service.AdvanceWorkout(ctx, owner, progress)
	if err != nil {
		writeServiceError(w, "advance workout", err)
		return
	}

	pkg.WriteJSON(w, next, http.StatusOK)
}

func (handler *Handler) HandleMigrateOwnership(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.migrate")
	defer span.End()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}

	migrated, err := handler.service.MigrateOwnership(ctx, owner)
	if err != nil {
		writeServiceError(w, "migrate ownership", err)
		return
	}

	pkg.WriteJSON(w, MigrateResponse{Migrated: migrated}, http.StatusOK)
}

// HandleStream pushes the owner's projection state as server-sent events, one
// "state" event per change, until the client goes away.
func (handler *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, ok := ownerOrUnauthorized(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	// streams outlive the server write timeout
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		log.Debugf("stream for %s: clear write deadline: %s", owner, err)
	}

	projector := handler.newProjection(owner)
	if err := projector.Start(ctx); err != nil {
		log.Errorf("stream for %s: start projector: %s", owner, err)
		http.Error(w, "stream not available", http.StatusInternalServerError)
		return
	}
	defer projector.Stop()

	w.Header().Set("Content-Type", pkg.ContentType.EventStream)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Errorf("stream for %s: flush not supported: %s", owner, err)
		return
	}

	keepAlive := time.NewTicker(handler.streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-projector.Changes():
			if !ok {
				return
			}
			if err := writeEvent(w, "state", state); err != nil {
				log.Debugf("stream for %s: write state: %s", owner, err)
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

func ownerOrUnauthorized(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return "", false
	}
	return owner, true
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Debugf("%s %s, unmarshal json body: %s", r.Method, r.URL.Path, err)
		http.Error(w, "error, invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNoOwner):
		http.Error(w, "no can do", http.StatusUnauthorized)
	case errors.Is(err, ErrSheetNotFound):
		http.Error(w, "sheet not found", http.StatusNotFound)
	case errors.Is(err, ErrHistoryLogNotFound):
		http.Error(w, "history log not found", http.StatusNotFound)
	case errors.Is(err, ErrEmptySheet):
		http.Error(w, "error, sheet needs at least one exercise", http.StatusBadRequest)
	case errors.Is(err, ErrNothingToImport):
		http.Error(w, "error, nothing to import", http.StatusBadRequest)
	case errors.Is(err, ErrNoActiveSheet):
		http.Error(w, "no active sheet", http.StatusConflict)
	case errors.Is(err, ErrNoResult):
		log.Errorf("%s: %s", op, err)
		http.Error(w, "assistant gave no result", http.StatusBadGateway)
	default:
		log.Errorf("%s: %s", op, err)
		http.Error(w, fmt.Sprintf("%s failed", op), http.StatusInternalServerError)
	}
}
