package workouts

import (
	"context"
	"errors"
)

var (
	ErrNoOwner            = errors.New("no owner")
	ErrSheetNotFound      = errors.New("sheet not found")
	ErrHistoryLogNotFound = errors.New("history log not found")
	ErrEmptySheet         = errors.New("sheet must have at least one exercise")
	ErrNothingToImport    = errors.New("no draft with exercises to import")
	ErrNoActiveSheet      = errors.New("no active sheet")
	ErrEmptyInput         = errors.New("empty input")
	// ErrNoResult marks a failed AI collaborator call, as opposed to an empty but valid answer.
	ErrNoResult = errors.New("no result")
)

// Snapshot is one push of a live query: the full current result set, or the subscription error.
type Snapshot[T any] struct {
	Items []T
	Err   error
}

// RecordStore persists sheets and history logs.
// Every method except ListUnowned is scoped to a single owner.
type RecordStore interface {
	CreateSheet(ctx context.Context, sheet Sheet) error
	GetSheet(ctx context.Context, owner, id string) (*Sheet, error)
	ListSheets(ctx context.Context, owner string) ([]Sheet, error)
	UpdateSheet(ctx context.Context, owner, id string, patch SheetPatch) error
	DeleteSheet(ctx context.Context, owner, id string) error

	CreateHistoryLog(ctx context.Context, log HistoryLog) error
	GetHistoryLog(ctx context.Context, owner, id string) (*HistoryLog, error)
	ListHistoryLogs(ctx context.Context, owner string) ([]HistoryLog, error)
	UpdateHistoryLog(ctx context.Context, owner, id string, patch HistoryPatch) error

	// SubscribeSheets pushes the owner's full sheet list on every change, starting with the current one.
	// The channel is closed once ctx is done.
	SubscribeSheets(ctx context.Context, owner string) (<-chan Snapshot[Sheet], error)
	SubscribeHistoryLogs(ctx context.Context, owner string) (<-chan Snapshot[HistoryLog], error)

	// ListUnowned scans both collections for records without an owner.
	ListUnowned(ctx context.Context) (OwnerAssignment, error)
	// AssignOwner claims the listed records in a single batched write.
	// Records that got an owner in the meantime are left untouched; the number of claimed records is returned.
	AssignOwner(ctx context.Context, owner string, assignment OwnerAssignment) (int, error)
}
