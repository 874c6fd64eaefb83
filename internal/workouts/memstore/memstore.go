// Package memstore is an in-memory workouts.RecordStore. It records every write issued against it
// and can be told to fail writes, which makes it the store of choice for exercising the
// consistency rules of the workouts service.
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/2beens/gymsheets/internal/workouts"
)

type Op string

const (
	OpCreateSheet      Op = "create_sheet"
	OpUpdateSheet      Op = "update_sheet"
	OpDeleteSheet      Op = "delete_sheet"
	OpCreateHistoryLog Op = "create_history_log"
	OpUpdateHistoryLog Op = "update_history_log"
	OpAssignOwner      Op = "assign_owner"
)

var ErrInjected = errors.New("injected store failure")

// Write is one write issued against the store, failed or not.
type Write struct {
	Op Op
	ID string
}

// FailureFunc decides whether a write fails. Returning nil lets it through.
type FailureFunc func(op Op, id string) error

type subscriber struct {
	owner      string
	history    bool
	notify     chan struct{}
	pendingErr error
}

type Store struct {
	mu     sync.Mutex
	sheets map[string]workouts.Sheet
	logs   map[string]workouts.HistoryLog
	writes []Write

	failure FailureFunc
	silent  bool
	subs    map[*subscriber]struct{}
}

var _ workouts.RecordStore = (*Store)(nil)

func New() *Store {
	return &Store{
		sheets: make(map[string]workouts.Sheet),
		logs:   make(map[string]workouts.HistoryLog),
		subs:   make(map[*subscriber]struct{}),
	}
}

// PutSheet seeds a sheet without counting a write.
func (s *Store) PutSheet(sheet workouts.Sheet) {
	s.mu.Lock()
	s.sheets[sheet.ID] = cloneSheet(sheet)
	s.mu.Unlock()
	s.notify(sheet.OwnerID, false)
}

// PutHistoryLog seeds a history log without counting a write.
func (s *Store) PutHistoryLog(log workouts.HistoryLog) {
	s.mu.Lock()
	s.logs[log.ID] = log
	s.mu.Unlock()
	s.notify(log.OwnerID, true)
}

func (s *Store) Sheet(id string) (workouts.Sheet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, ok := s.sheets[id]
	return cloneSheet(sheet), ok
}

func (s *Store) HistoryLog(id string) (workouts.HistoryLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[id]
	return log, ok
}

// Writes returns every write issued so far.
func (s *Store) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	writes := make([]Write, len(s.writes))
	copy(writes, s.writes)
	return writes
}

func (s *Store) WritesCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *Store) ResetWrites() {
	s.mu.Lock()
	s.writes = nil
	s.mu.Unlock()
}

func (s *Store) InjectFailure(f FailureFunc) {
	s.mu.Lock()
	s.failure = f
	s.mu.Unlock()
}

// SetSilent makes subscriptions stay quiet, as with a store that is not reachable.
func (s *Store) SetSilent(silent bool) {
	s.mu.Lock()
	s.silent = silent
	s.mu.Unlock()
}

// BreakSubscriptions pushes err to every live subscription.
func (s *Store) BreakSubscriptions(err error) {
	s.mu.Lock()
	for sub := range s.subs {
		sub.pendingErr = err
		signal(sub.notify)
	}
	s.mu.Unlock()
}

// beginWrite records the write and returns the injected failure, if any. Callers hold s.mu.
func (s *Store) beginWrite(op Op, id string) error {
	s.writes = append(s.writes, Write{Op: op, ID: id})
	if s.failure != nil {
		return s.failure(op, id)
	}
	return nil
}

func (s *Store) CreateSheet(_ context.Context, sheet workouts.Sheet) error {
	s.mu.Lock()
	if err := s.beginWrite(OpCreateSheet, sheet.ID); err != nil {
		s.mu.Unlock()
		return err
	}
	s.sheets[sheet.ID] = cloneSheet(sheet)
	s.mu.Unlock()

	s.notify(sheet.OwnerID, false)
	return nil
}

func (s *Store) GetSheet(_ context.Context, owner, id string) (*workouts.Sheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sheet, ok := s.sheets[id]
	if !ok || sheet.OwnerID != owner {
		return nil, workouts.ErrSheetNotFound
	}
	sheet = cloneSheet(sheet)
	return &sheet, nil
}

func (s *Store) ListSheets(_ context.Context, owner string) ([]workouts.Sheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownerSheets(owner), nil
}

func (s *Store) UpdateSheet(_ context.Context, owner, id string, patch workouts.SheetPatch) error {
	s.mu.Lock()
	if err := s.beginWrite(OpUpdateSheet, id); err != nil {
		s.mu.Unlock()
		return err
	}
	sheet, ok := s.sheets[id]
	if !ok || sheet.OwnerID != owner {
		s.mu.Unlock()
		return workouts.ErrSheetNotFound
	}
	if patch.Title != nil {
		sheet.Title = *patch.Title
	}
	if patch.Exercises != nil {
		sheet.Exercises = append([]workouts.Exercise(nil), (*patch.Exercises)...)
	}
	if patch.IsActive != nil {
		sheet.IsActive = *patch.IsActive
	}
	if patch.GroupID != nil {
		sheet.GroupID = *patch.GroupID
	}
	if patch.Insights != nil {
		insights := *patch.Insights
		sheet.Insights = &insights
	}
	s.sheets[id] = sheet
	s.mu.Unlock()

	s.notify(owner, false)
	return nil
}

func (s *Store) DeleteSheet(_ context.Context, owner, id string) error {
	s.mu.Lock()
	if err := s.beginWrite(OpDeleteSheet, id); err != nil {
		s.mu.Unlock()
		return err
	}
	sheet, ok := s.sheets[id]
	if !ok || sheet.OwnerID != owner {
		s.mu.Unlock()
		return workouts.ErrSheetNotFound
	}
	delete(s.sheets, id)
	s.mu.Unlock()

	s.notify(owner, false)
	return nil
}

func (s *Store) CreateHistoryLog(_ context.Context, log workouts.HistoryLog) error {
	s.mu.Lock()
	if err := s.beginWrite(OpCreateHistoryLog, log.ID); err != nil {
		s.mu.Unlock()
		return err
	}
	s.logs[log.ID] = log
	s.mu.Unlock()

	s.notify(log.OwnerID, true)
	return nil
}

func (s *Store) GetHistoryLog(_ context.Context, owner, id string) (*workouts.HistoryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[id]
	if !ok || log.OwnerID != owner {
		return nil, workouts.ErrHistoryLogNotFound
	}
	return &log, nil
}

func (s *Store) ListHistoryLogs(_ context.Context, owner string) ([]workouts.HistoryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownerHistoryLogs(owner), nil
}

func (s *Store) UpdateHistoryLog(_ context.Context, owner, id string, patch workouts.HistoryPatch) error {
	s.mu.Lock()
	if err := s.beginWrite(OpUpdateHistoryLog, id); err != nil {
		s.mu.Unlock()
		return err
	}
	log, ok := s.logs[id]
	if !ok || log.OwnerID != owner {
		s.mu.Unlock()
		return workouts.ErrHistoryLogNotFound
	}
	if patch.GroupID != nil {
		log.GroupID = *patch.GroupID
	}
	if patch.Document != nil {
		log.PDFURL = patch.Document.URL
		log.PDFName = patch.Document.Name
	}
	s.logs[id] = log
	s.mu.Unlock()

	s.notify(owner, true)
	return nil
}

func (s *Store) ListUnowned(_ context.Context) (workouts.OwnerAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var assignment workouts.OwnerAssignment
	for id, sheet := range s.sheets {
		if sheet.OwnerID == "" {
			assignment.SheetIDs = append(assignment.SheetIDs, id)
		}
	}
	for id, log := range s.logs {
		if log.OwnerID == "" {
			assignment.HistoryIDs = append(assignment.HistoryIDs, id)
		}
	}
	return assignment, nil
}

func (s *Store) AssignOwner(_ context.Context, owner string, assignment workouts.OwnerAssignment) (int, error) {
	s.mu.Lock()
	if err := s.beginWrite(OpAssignOwner, owner); err != nil {
		s.mu.Unlock()
		return 0, err
	}

	assigned := 0
	for _, id := range assignment.SheetIDs {
		sheet, ok := s.sheets[id]
		if !ok || sheet.OwnerID != "" {
			continue
		}
		sheet.OwnerID = owner
		s.sheets[id] = sheet
		assigned++
	}
	for _, id := range assignment.HistoryIDs {
		log, ok := s.logs[id]
		if !ok || log.OwnerID != "" {
			continue
		}
		log.OwnerID = owner
		s.logs[id] = log
		assigned++
	}
	s.mu.Unlock()

	s.notify(owner, false)
	s.notify(owner, true)
	return assigned, nil
}

func (s *Store) SubscribeSheets(ctx context.Context, owner string) (<-chan workouts.Snapshot[workouts.Sheet], error) {
	out := make(chan workouts.Snapshot[workouts.Sheet])
	sub := s.subscribe(owner, false)
	go func() {
		defer close(out)
		defer s.unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.notify:
			}

			s.mu.Lock()
			snap := workouts.Snapshot[workouts.Sheet]{Items: s.ownerSheets(owner), Err: sub.pendingErr}
			sub.pendingErr = nil
			s.mu.Unlock()
			if snap.Err != nil {
				snap.Items = nil
			}

			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Store) SubscribeHistoryLogs(ctx context.Context, owner string) (<-chan workouts.Snapshot[workouts.HistoryLog], error) {
	out := make(chan workouts.Snapshot[workouts.HistoryLog])
	sub := s.subscribe(owner, true)
	go func() {
		defer close(out)
		defer s.unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.notify:
			}

			s.mu.Lock()
			snap := workouts.Snapshot[workouts.HistoryLog]{Items: s.ownerHistoryLogs(owner), Err: sub.pendingErr}
			sub.pendingErr = nil
			s.mu.Unlock()
			if snap.Err != nil {
				snap.Items = nil
			}

			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) subscribe(owner string, history bool) *subscriber {
	sub := &subscriber{
		owner:   owner,
		history: history,
		notify:  make(chan struct{}, 1),
	}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	if !s.silent {
		signal(sub.notify)
	}
	s.mu.Unlock()
	return sub
}

func (s *Store) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

func (s *Store) notify(owner string, history bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.silent {
		return
	}
	for sub := range s.subs {
		if sub.owner == owner && sub.history == history {
			signal(sub.notify)
		}
	}
}

// ownerSheets and ownerHistoryLogs are called with s.mu held.
func (s *Store) ownerSheets(owner string) []workouts.Sheet {
	sheets := make([]workouts.Sheet, 0)
	for _, sheet := range s.sheets {
		if sheet.OwnerID == owner {
			sheets = append(sheets, cloneSheet(sheet))
		}
	}
	return sheets
}

func (s *Store) ownerHistoryLogs(owner string) []workouts.HistoryLog {
	logs := make([]workouts.HistoryLog, 0)
	for _, log := range s.logs {
		if log.OwnerID == owner {
			logs = append(logs, log)
		}
	}
	return logs
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func cloneSheet(sheet workouts.Sheet) workouts.Sheet {
	sheet.Exercises = append([]workouts.Exercise(nil), sheet.Exercises...)
	if sheet.Insights != nil {
		insights := *sheet.Insights
		sheet.Insights = &insights
	}
	return sheet
}
