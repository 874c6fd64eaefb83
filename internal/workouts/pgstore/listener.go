package pgstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// listener multiplexes the live queries of one Store over a single LISTEN connection.
// It connects on the first subscription and lets the connection go with the last one.
type listener struct {
	db       *pgxpool.Pool
	channels []string

	mu      sync.Mutex
	subs    map[listenKey]map[*listenSub]struct{}
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type listenKey struct {
	channel string
	owner   string
}

// listenSub is woken on every notification for its key. lost receives the error that ended the
// shared connection, after which the sub is no longer registered.
type listenSub struct {
	key  listenKey
	wake chan struct{}
	lost chan error
}

func newListener(db *pgxpool.Pool, channels ...string) *listener {
	return &listener{
		db:       db,
		channels: channels,
		subs:     make(map[listenKey]map[*listenSub]struct{}),
	}
}

// register returns once the connection is listening, so a list query run afterwards cannot miss
// a change.
func (l *listener) register(ctx context.Context, channel, owner string) (*listenSub, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		if err := l.start(ctx); err != nil {
			return nil, err
		}
	}

	sub := &listenSub{
		key:  listenKey{channel: channel, owner: owner},
		wake: make(chan struct{}, 1),
		lost: make(chan error, 1),
	}
	if l.subs[sub.key] == nil {
		l.subs[sub.key] = make(map[*listenSub]struct{})
	}
	l.subs[sub.key][sub] = struct{}{}
	return sub, nil
}

func (l *listener) unregister(sub *listenSub) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if subs, ok := l.subs[sub.key]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(l.subs, sub.key)
		}
	}
	if len(l.subs) == 0 && l.running {
		l.running = false
		l.cancel()
	}
}

// start is called with l.mu held.
func (l *listener) start(ctx context.Context) error {
	conn, err := l.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener conn: %w", err)
	}
	for _, channel := range l.channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			discardConn(conn)
			return fmt.Errorf("listen %s: %w", channel, err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.running = true
	l.cancel = cancel
	l.done = done

	go l.loop(loopCtx, conn, done)
	return nil
}

func (l *listener) loop(ctx context.Context, conn *pgxpool.Conn, done chan struct{}) {
	defer close(done)
	defer func() {
		unlistenCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlistenCtx, "UNLISTEN *"); err != nil {
			discardConn(conn)
			return
		}
		conn.Release()
	}()

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			log.Errorf("listener: wait for notification: %s", err)
			l.fail(done, err)
			return
		}
		l.dispatch(listenKey{channel: notification.Channel, owner: notification.Payload})
	}
}

func (l *listener) dispatch(key listenKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for sub := range l.subs[key] {
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

// fail hands err to every registered sub and forgets them. The next register reconnects.
func (l *listener) fail(done chan struct{}, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// a newer connection already took over
	if l.done != done {
		return
	}
	l.running = false
	l.cancel()
	for key, subs := range l.subs {
		for sub := range subs {
			sub.lost <- err
		}
		delete(l.subs, key)
	}
}

// discardConn closes a connection in an unknown state so it is not handed back to the pool.
func discardConn(conn *pgxpool.Conn) {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = conn.Conn().Close(closeCtx)
	conn.Release()
}
