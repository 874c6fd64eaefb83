package workouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymsheets/internal/telemetry/metrics"
)

const DefaultLoadTimeout = 5 * time.Second

var (
	ErrProjectorStarted  = errors.New("projector already started")
	ErrSubscriptionEnded = errors.New("subscription ended")
)

// ProjectionState is a point in time view of an owner's sheets and history.
type ProjectionState struct {
	Sheets      []Sheet      `json:"sheets"`
	HistoryLogs []HistoryLog `json:"historyLogs"`
	ActiveSheet *Sheet       `json:"activeSheet,omitempty"`
	Loading     bool         `json:"loading"`
	Error       string       `json:"error,omitempty"`
}

// Projector keeps an in-memory view of one owner's sheets and history logs in sync with the store.
// Every push replaces the whole list. Loading clears on the first push or subscription error of
// either stream, or after the load timeout. Each stream keeps its own error, a push on one stream
// never clears the other one's. A stream that ends before Stop ends the projector.
type Projector struct {
	store          RecordStore
	owner          string
	loadTimeout    time.Duration
	metricsManager *metrics.Manager

	mu      sync.RWMutex
	sheets  []Sheet
	logs    []HistoryLog
	loading   bool
	sheetsErr error
	logsErr   error

	changes  chan ProjectionState
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

func NewProjector(store RecordStore, owner string, loadTimeout time.Duration, metricsManager *metrics.Manager) *Projector {
	if loadTimeout <= 0 {
		loadTimeout = DefaultLoadTimeout
	}
	return &Projector{
		store:          store,
		owner:          owner,
		loadTimeout:    loadTimeout,
		metricsManager: metricsManager,
		loading:        true,
		changes:        make(chan ProjectionState, 1),
		done:           make(chan struct{}),
	}
}

// Start subscribes to both collections. The subscriptions live until Stop is called or ctx is done.
func (p *Projector) Start(ctx context.Context) error {
	if p.owner == "" {
		return ErrNoOwner
	}

	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrProjectorStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	p.started = true
	p.cancel = cancel
	p.mu.Unlock()

	sheetsCh, err := p.store.SubscribeSheets(ctx, p.owner)
	if err != nil {
		cancel()
		close(p.done)
		return fmt.Errorf("subscribe sheets: %w", err)
	}
	logsCh, err := p.store.SubscribeHistoryLogs(ctx, p.owner)
	if err != nil {
		cancel()
		close(p.done)
		return fmt.Errorf("subscribe history logs: %w", err)
	}

	if p.metricsManager != nil {
		p.metricsManager.GaugeActiveProjectors.Inc()
	}
	go p.run(ctx, sheetsCh, logsCh)
	return nil
}

// Stop unsubscribes both streams and waits for the projector to wind down.
func (p *Projector) Stop() {
	p.stopOnce.Do(func() {
		p.mu.RLock()
		started, cancel := p.started, p.cancel
		p.mu.RUnlock()
		if !started {
			return
		}
		cancel()
		<-p.done
	})
}

// Changes delivers the latest state after every change. Stale states are dropped if the
// consumer falls behind. The channel is closed when the projector stops or one of its streams ends.
func (p *Projector) Changes() <-chan ProjectionState {
	return p.changes
}

func (p *Projector) State() ProjectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	state := ProjectionState{
		Sheets:      make([]Sheet, len(p.sheets)),
		HistoryLogs: make([]HistoryLog, len(p.logs)),
		Loading:     p.loading,
	}
	copy(state.Sheets, p.sheets)
	copy(state.HistoryLogs, p.logs)
	if active, ok := ActiveSheet(state.Sheets); ok {
		state.ActiveSheet = &active
	}
	var errs []string
	for _, err := range []error{p.sheetsErr, p.logsErr} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	state.Error = strings.Join(errs, "; ")
	return state
}

func (p *Projector) run(ctx context.Context, sheetsCh <-chan Snapshot[Sheet], logsCh <-chan Snapshot[HistoryLog]) {
	defer func() {
		// releases the other stream when one of them ended on its own
		p.cancel()
		if p.metricsManager != nil {
			p.metricsManager.GaugeActiveProjectors.Dec()
		}
		close(p.changes)
		close(p.done)
	}()

	loadTimer := time.NewTimer(p.loadTimeout)
	defer loadTimer.Stop()
	loadTimeout := loadTimer.C

	for {
		select {
		case <-ctx.Done():
			return
		case <-loadTimeout:
			loadTimeout = nil
			p.mu.Lock()
			wasLoading := p.loading
			p.loading = false
			p.mu.Unlock()
			if wasLoading {
				log.Warnf("projector [%s]: no data after %s", p.owner, p.loadTimeout)
				p.publish()
			}
		case snap, ok := <-sheetsCh:
			if !ok {
				p.streamEnded(ctx, "sheets", &p.sheetsErr)
				return
			}
			p.applySheets(snap)
			p.publish()
		case snap, ok := <-logsCh:
			if !ok {
				p.streamEnded(ctx, "history", &p.logsErr)
				return
			}
			p.applyHistoryLogs(snap)
			p.publish()
		}
	}
}

func (p *Projector) applySheets(snap Snapshot[Sheet]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.loading = false
	if snap.Err != nil {
		log.Errorf("projector [%s]: sheets subscription: %s", p.owner, snap.Err)
		p.sheetsErr = snap.Err
		return
	}

	sheets := make([]Sheet, len(snap.Items))
	copy(sheets, snap.Items)
	SortSheets(sheets)
	p.sheets = sheets
	p.sheetsErr = nil
	p.countPush("sheets")
}

func (p *Projector) applyHistoryLogs(snap Snapshot[HistoryLog]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.loading = false
	if snap.Err != nil {
		log.Errorf("projector [%s]: history subscription: %s", p.owner, snap.Err)
		p.logsErr = snap.Err
		return
	}

	logs := make([]HistoryLog, len(snap.Items))
	copy(logs, snap.Items)
	SortHistoryLogs(logs)
	p.logs = logs
	p.logsErr = nil
	p.countPush("history")
}

// streamEnded records a stream that closed while the projector was still wanted, and publishes
// the final state. A stream closed by Stop is not an error.
func (p *Projector) streamEnded(ctx context.Context, collection string, streamErr *error) {
	if ctx.Err() != nil {
		return
	}
	log.Errorf("projector [%s]: %s subscription ended", p.owner, collection)
	p.mu.Lock()
	p.loading = false
	if *streamErr == nil {
		*streamErr = fmt.Errorf("%s: %w", collection, ErrSubscriptionEnded)
	} else {
		*streamErr = fmt.Errorf("%s: %w: %w", collection, ErrSubscriptionEnded, *streamErr)
	}
	p.mu.Unlock()
	p.publish()
}

func (p *Projector) countPush(collection string) {
	if p.metricsManager == nil {
		return
	}
	p.metricsManager.CounterProjectorPushes.With(prometheus.Labels{"collection": collection}).Inc()
}

// publish replaces any undelivered state with the current one.
func (p *Projector) publish() {
	state := p.State()
	select {
	case <-p.changes:
	default:
	}
	select {
	case p.changes <- state:
	default:
	}
}
