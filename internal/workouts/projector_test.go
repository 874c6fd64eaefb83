package workouts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/workouts"
	"github.com/2beens/gymsheets/internal/workouts/memstore"
)

// waitForState reads changes until cond holds or the timeout elapses.
func waitForState(t *testing.T, p *workouts.Projector, cond func(workouts.ProjectionState) bool) workouts.ProjectionState {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case state, ok := <-p.Changes():
			require.True(t, ok, "projector stopped")
			if cond(state) {
				return state
			}
		case <-timeout:
			t.Fatalf("condition not met, last state: %+v", p.State())
		}
	}
}

func TestProjector_FirstPushClearsLoading(t *testing.T) {
	store := memstore.New()
	now := time.Now()
	seedSheet(store, "b", true, "", now)
	seedSheet(store, "a", false, "", now.Add(-time.Hour))
	store.PutHistoryLog(workouts.HistoryLog{ID: "old", OwnerID: testOwner, Date: now.Add(-time.Hour)})
	store.PutHistoryLog(workouts.HistoryLog{ID: "new", OwnerID: testOwner, Date: now})
	store.PutSheet(workouts.Sheet{ID: "foreign", OwnerID: "owner-2", CreatedAt: now})

	p := workouts.NewProjector(store, testOwner, time.Minute, metrics.NewTestManager())
	assert.True(t, p.State().Loading)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	state := waitForState(t, p, func(s workouts.ProjectionState) bool {
		return len(s.Sheets) == 2 && len(s.HistoryLogs) == 2
	})
	assert.False(t, state.Loading)
	assert.Equal(t, "a", state.Sheets[0].ID)
	assert.Equal(t, "b", state.Sheets[1].ID)
	assert.Equal(t, "new", state.HistoryLogs[0].ID)
	assert.Equal(t, "old", state.HistoryLogs[1].ID)
	require.NotNil(t, state.ActiveSheet)
	assert.Equal(t, "b", state.ActiveSheet.ID)
}

func TestProjector_FollowsWrites(t *testing.T) {
	store := memstore.New()
	now := time.Now()
	seedSheet(store, "a", true, "", now)
	seedSheet(store, "b", false, "", now.Add(time.Second))
	svc := workouts.NewService(store, nil, metrics.NewTestManager())

	p := workouts.NewProjector(store, testOwner, time.Minute, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	waitForState(t, p, func(s workouts.ProjectionState) bool { return len(s.Sheets) == 2 })

	require.NoError(t, svc.Activate(context.Background(), testOwner, "b"))
	state := waitForState(t, p, func(s workouts.ProjectionState) bool {
		return s.ActiveSheet != nil && s.ActiveSheet.ID == "b"
	})
	for _, sheet := range state.Sheets {
		if sheet.ID == "a" {
			assert.False(t, sheet.IsActive)
		}
	}

	require.NoError(t, svc.DeleteSheet(context.Background(), testOwner, "a"))
	waitForState(t, p, func(s workouts.ProjectionState) bool { return len(s.Sheets) == 1 })
}

func TestProjector_LoadTimeout(t *testing.T) {
	store := memstore.New()
	store.SetSilent(true)

	p := workouts.NewProjector(store, testOwner, 50*time.Millisecond, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	state := waitForState(t, p, func(s workouts.ProjectionState) bool { return !s.Loading })
	assert.Empty(t, state.Sheets)
	assert.Empty(t, state.HistoryLogs)
	assert.Nil(t, state.ActiveSheet)
}

func TestProjector_SubscriptionErrorClearsLoading(t *testing.T) {
	store := memstore.New()
	store.SetSilent(true)

	p := workouts.NewProjector(store, testOwner, time.Minute, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool { return store.Subscribers() == 2 }, time.Second, 5*time.Millisecond)
	store.BreakSubscriptions(errors.New("permission denied"))

	state := waitForState(t, p, func(s workouts.ProjectionState) bool { return !s.Loading })
	assert.Equal(t, "permission denied", state.Error)
}

// sheetsFeedStore serves sheets from a channel the test controls, history from memstore.
type sheetsFeedStore struct {
	*memstore.Store
	sheets chan workouts.Snapshot[workouts.Sheet]
}

func (s *sheetsFeedStore) SubscribeSheets(_ context.Context, _ string) (<-chan workouts.Snapshot[workouts.Sheet], error) {
	return s.sheets, nil
}

func TestProjector_StreamErrorsAreKeptPerStream(t *testing.T) {
	store := &sheetsFeedStore{
		Store:  memstore.New(),
		sheets: make(chan workouts.Snapshot[workouts.Sheet]),
	}

	p := workouts.NewProjector(store, testOwner, time.Minute, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	store.sheets <- workouts.Snapshot[workouts.Sheet]{Items: []workouts.Sheet{{ID: "a", OwnerID: testOwner, IsActive: true}}}
	waitForState(t, p, func(s workouts.ProjectionState) bool { return len(s.Sheets) == 1 })

	store.sheets <- workouts.Snapshot[workouts.Sheet]{Err: errors.New("listener connection lost")}
	waitForState(t, p, func(s workouts.ProjectionState) bool { return s.Error != "" })

	// a history push leaves the sheets error in place
	store.PutHistoryLog(workouts.HistoryLog{ID: "h", OwnerID: testOwner, Date: time.Now()})
	state := waitForState(t, p, func(s workouts.ProjectionState) bool { return len(s.HistoryLogs) == 1 })
	assert.Contains(t, state.Error, "listener connection lost")
	assert.Len(t, state.Sheets, 1)

	// the sheets stream ends: the projector reports it and stops
	close(store.sheets)
	var last workouts.ProjectionState
	timeout := time.After(2 * time.Second)
	for closed := false; !closed; {
		select {
		case s, ok := <-p.Changes():
			if !ok {
				closed = true
				break
			}
			last = s
		case <-timeout:
			t.Fatal("projector kept running after its sheets stream ended")
		}
	}
	assert.Contains(t, last.Error, workouts.ErrSubscriptionEnded.Error())
	assert.Contains(t, last.Error, "listener connection lost")
	assert.False(t, last.Loading)

	// the history subscription is released as well
	require.Eventually(t, func() bool { return store.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestProjector_StopUnsubscribes(t *testing.T) {
	store := memstore.New()
	p := workouts.NewProjector(store, testOwner, time.Minute, nil)
	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return store.Subscribers() == 2 }, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()

	require.Eventually(t, func() bool { return store.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	for range p.Changes() {
		// drain until closed
	}
	assert.ErrorIs(t, p.Start(context.Background()), workouts.ErrProjectorStarted)
}

func TestProjector_NoOwner(t *testing.T) {
	p := workouts.NewProjector(memstore.New(), "", time.Second, nil)
	assert.ErrorIs(t, p.Start(context.Background()), workouts.ErrNoOwner)
	p.Stop()
}
