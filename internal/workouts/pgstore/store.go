package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/gymsheets/internal/telemetry/tracing"
	"github.com/2beens/gymsheets/internal/workouts"
)

const (
	sheetsChannel  = "workout_sheet"
	historyChannel = "workout_history"

	sheetColumns   = `id, owner_id, title, created_at, exercises, is_active, group_id, pdf_url, pdf_name, insights`
	historyColumns = `id, owner_id, title, date, pdf_url, pdf_name, group_id`
)

// Store is the Postgres backed workouts.RecordStore. Live queries are built on LISTEN/NOTIFY:
// a trigger on both tables publishes the affected owner on a channel named after the table, and
// all subscriptions of a Store share one listening connection.
type Store struct {
	db       *pgxpool.Pool
	listener *listener
}

var _ workouts.RecordStore = (*Store)(nil)

func New(db *pgxpool.Pool) *Store {
	return &Store{
		db:       db,
		listener: newListener(db, sheetsChannel, historyChannel),
	}
}

func (s *Store) CreateSheet(ctx context.Context, sheet workouts.Sheet) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.sheets.create")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	exercisesJson, err := json.Marshal(nonNilExercises(sheet.Exercises))
	if err != nil {
		return fmt.Errorf("marshal exercises: %w", err)
	}
	insightsJson, err := marshalInsights(sheet.Insights)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO workout_sheet (`+sheetColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		sheet.ID,
		nullable(sheet.OwnerID),
		sheet.Title,
		sheet.CreatedAt,
		exercisesJson,
		sheet.IsActive,
		nullable(sheet.GroupID),
		nullable(sheet.PDFURL),
		nullable(sheet.PDFName),
		insightsJson,
	)
	return err
}

func (s *Store) GetSheet(ctx context.Context, owner, id string) (_ *workouts.Sheet, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.sheets.get")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	row := s.db.QueryRow(ctx, `
		SELECT `+sheetColumns+`
		FROM workout_sheet
		WHERE id = $1 AND owner_id = $2
	`, id, owner)
	sheet, err := scanSheet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workouts.ErrSheetNotFound
	}
	if err != nil {
		return nil, err
	}
	return sheet, nil
}

// ListSheets returns the owner's sheets unordered; callers sort.
func (s *Store) ListSheets(ctx context.Context, owner string) (_ []workouts.Sheet, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.sheets.list")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	rows, err := s.db.Query(ctx, `
		SELECT `+sheetColumns+`
		FROM workout_sheet
		WHERE owner_id = $1
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sheets := make([]workouts.Sheet, 0)
	for rows.Next() {
		sheet, err := scanSheet(rows)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, *sheet)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(sheets)))
	return sheets, nil
}

func (s *Store) UpdateSheet(ctx context.Context, owner, id string, patch workouts.SheetPatch) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.sheets.update")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	set := newSetClause(id, owner)
	if patch.Title != nil {
		set.add("title", *patch.Title)
	}
	if patch.Exercises != nil {
		exercisesJson, err := json.Marshal(nonNilExercises(*patch.Exercises))
		if err != nil {
			return fmt.Errorf("marshal exercises: %w", err)
		}
		set.add("exercises", exercisesJson)
	}
	if patch.IsActive != nil {
		set.add("is_active", *patch.IsActive)
	}
	if patch.GroupID != nil {
		set.add("group_id", nullable(*patch.GroupID))
	}
	if patch.Insights != nil {
		insightsJson, err := marshalInsights(patch.Insights)
		if err != nil {
			return err
		}
		set.add("insights", insightsJson)
	}
	if set.empty() {
		return nil
	}

	tag, err := s.db.Exec(ctx, `UPDATE workout_sheet SET `+set.sql()+` WHERE id = $1 AND owner_id = $2`, set.args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workouts.ErrSheetNotFound
	}
	return nil
}

func (s *Store) DeleteSheet(ctx context.Context, owner, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.sheets.delete")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	tag, err := s.db.Exec(ctx, `DELETE FROM workout_sheet WHERE id = $1 AND owner_id = $2`, id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workouts.ErrSheetNotFound
	}
	return nil
}

func (s *Store) CreateHistoryLog(ctx context.Context, historyLog workouts.HistoryLog) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.history.create")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	_, err = s.db.Exec(ctx, `
		INSERT INTO workout_history (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		historyLog.ID,
		nullable(historyLog.OwnerID),
		historyLog.Title,
		historyLog.Date,
		nullable(historyLog.PDFURL),
		nullable(historyLog.PDFName),
		nullable(historyLog.GroupID),
	)
	return err
}

func (s *Store) GetHistoryLog(ctx context.Context, owner, id string) (_ *workouts.HistoryLog, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.history.get")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	row := s.db.QueryRow(ctx, `
		SELECT `+historyColumns+`
		FROM workout_history
		WHERE id = $1 AND owner_id = $2
	`, id, owner)
	historyLog, err := scanHistoryLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workouts.ErrHistoryLogNotFound
	}
	if err != nil {
		return nil, err
	}
	return historyLog, nil
}

func (s *Store) ListHistoryLogs(ctx context.Context, owner string) (_ []workouts.HistoryLog, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.history.list")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	rows, err := s.db.Query(ctx, `
		SELECT `+historyColumns+`
		FROM workout_history
		WHERE owner_id = $1
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]workouts.HistoryLog, 0)
	for rows.Next() {
		historyLog, err := scanHistoryLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *historyLog)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) UpdateHistoryLog(ctx context.Context, owner, id string, patch workouts.HistoryPatch) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.history.update")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	set := newSetClause(id, owner)
	if patch.GroupID != nil {
		set.add("group_id", nullable(*patch.GroupID))
	}
	if patch.Document != nil {
		set.add("pdf_url", nullable(patch.Document.URL))
		set.add("pdf_name", nullable(patch.Document.Name))
	}
	if set.empty() {
		return nil
	}

	tag, err := s.db.Exec(ctx, `UPDATE workout_history SET `+set.sql()+` WHERE id = $1 AND owner_id = $2`, set.args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workouts.ErrHistoryLogNotFound
	}
	return nil
}

func (s *Store) ListUnowned(ctx context.Context) (_ workouts.OwnerAssignment, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.unowned.list")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	var assignment workouts.OwnerAssignment
	assignment.SheetIDs, err = s.queryIDs(ctx, `SELECT id FROM workout_sheet WHERE owner_id IS NULL`)
	if err != nil {
		return workouts.OwnerAssignment{}, fmt.Errorf("unowned sheets: %w", err)
	}
	assignment.HistoryIDs, err = s.queryIDs(ctx, `SELECT id FROM workout_history WHERE owner_id IS NULL`)
	if err != nil {
		return workouts.OwnerAssignment{}, fmt.Errorf("unowned history logs: %w", err)
	}

	span.SetAttributes(attribute.Int("count", assignment.Len()))
	return assignment, nil
}

// AssignOwner claims both lists in one transaction, sent as a single batch.
func (s *Store) AssignOwner(ctx context.Context, owner string, assignment workouts.OwnerAssignment) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.unowned.assign")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	batch := &pgx.Batch{}
	batch.Queue(`UPDATE workout_sheet SET owner_id = $1 WHERE id = ANY($2) AND owner_id IS NULL`, owner, assignment.SheetIDs)
	batch.Queue(`UPDATE workout_history SET owner_id = $1 WHERE id = ANY($2) AND owner_id IS NULL`, owner, assignment.HistoryIDs)

	results := tx.SendBatch(ctx, batch)
	assigned := 0
	for i := 0; i < batch.Len(); i++ {
		tag, execErr := results.Exec()
		if execErr != nil {
			_ = results.Close()
			return 0, fmt.Errorf("assign owner batch: %w", execErr)
		}
		assigned += int(tag.RowsAffected())
	}
	if err = results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	return assigned, nil
}

func (s *Store) queryIDs(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func scanSheet(row pgx.Row) (*workouts.Sheet, error) {
	var (
		sheet                          workouts.Sheet
		ownerID, groupID, pdfURL, name *string
		exercisesJson, insightsJson    []byte
	)
	if err := row.Scan(
		&sheet.ID,
		&ownerID,
		&sheet.Title,
		&sheet.CreatedAt,
		&exercisesJson,
		&sheet.IsActive,
		&groupID,
		&pdfURL,
		&name,
		&insightsJson,
	); err != nil {
		return nil, err
	}

	sheet.OwnerID = deref(ownerID)
	sheet.GroupID = deref(groupID)
	sheet.PDFURL = deref(pdfURL)
	sheet.PDFName = deref(name)

	if len(exercisesJson) > 0 {
		if err := json.Unmarshal(exercisesJson, &sheet.Exercises); err != nil {
			return nil, fmt.Errorf("unmarshal exercises of sheet %s: %w", sheet.ID, err)
		}
	}
	if len(insightsJson) > 0 && string(insightsJson) != "null" {
		sheet.Insights = &workouts.InsightData{}
		if err := json.Unmarshal(insightsJson, sheet.Insights); err != nil {
			log.Warnf("sheet [%s] has malformed insights, ignoring: %s", sheet.ID, err)
			sheet.Insights = nil
		}
	}
	return &sheet, nil
}

func scanHistoryLog(row pgx.Row) (*workouts.HistoryLog, error) {
	var (
		historyLog                     workouts.HistoryLog
		ownerID, pdfURL, name, groupID *string
	)
	if err := row.Scan(
		&historyLog.ID,
		&ownerID,
		&historyLog.Title,
		&historyLog.Date,
		&pdfURL,
		&name,
		&groupID,
	); err != nil {
		return nil, err
	}
	historyLog.OwnerID = deref(ownerID)
	historyLog.PDFURL = deref(pdfURL)
	historyLog.PDFName = deref(name)
	historyLog.GroupID = deref(groupID)
	return &historyLog, nil
}

// setClause builds the SET list of an update whose first two args are the record id and owner.
type setClause struct {
	columns []string
	args    []any
}

func newSetClause(id, owner string) *setClause {
	return &setClause{args: []any{id, owner}}
}

func (c *setClause) add(column string, value any) {
	c.args = append(c.args, value)
	c.columns = append(c.columns, fmt.Sprintf("%s = $%d", column, len(c.args)))
}

func (c *setClause) empty() bool {
	return len(c.columns) == 0
}

func (c *setClause) sql() string {
	return strings.Join(c.columns, ", ")
}

func marshalInsights(insights *workouts.InsightData) ([]byte, error) {
	if insights == nil {
		return nil, nil
	}
	insightsJson, err := json.Marshal(insights)
	if err != nil {
		return nil, fmt.Errorf("marshal insights: %w", err)
	}
	return insightsJson, nil
}

func nonNilExercises(exercises []workouts.Exercise) []workouts.Exercise {
	if exercises == nil {
		return []workouts.Exercise{}
	}
	return exercises
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
