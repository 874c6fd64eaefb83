package pgstore

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymsheets/internal/workouts"
)

func (s *Store) SubscribeSheets(ctx context.Context, owner string) (<-chan workouts.Snapshot[workouts.Sheet], error) {
	return subscribe(ctx, s.listener, sheetsChannel, owner, s.ListSheets)
}

func (s *Store) SubscribeHistoryLogs(ctx context.Context, owner string) (<-chan workouts.Snapshot[workouts.HistoryLog], error) {
	return subscribe(ctx, s.listener, historyChannel, owner, s.ListHistoryLogs)
}

// subscribe pushes the owner's full list on start and again after every notification carrying
// the owner. Queries borrow a pool connection only while they run. When the shared listener
// connection is lost the error is pushed and the subscription ends.
func subscribe[T any](
	ctx context.Context,
	l *listener,
	channel, owner string,
	list func(ctx context.Context, owner string) ([]T, error),
) (<-chan workouts.Snapshot[T], error) {
	sub, err := l.register(ctx, channel, owner)
	if err != nil {
		return nil, err
	}

	out := make(chan workouts.Snapshot[T])
	go func() {
		defer close(out)
		defer l.unregister(sub)

		push := func(snap workouts.Snapshot[T]) bool {
			select {
			case out <- snap:
				return true
			case <-ctx.Done():
				return false
			}
		}
		pushList := func() bool {
			items, err := list(ctx, owner)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				log.Errorf("subscription [%s/%s]: list: %s", channel, owner, err)
				return push(workouts.Snapshot[T]{Err: err})
			}
			return push(workouts.Snapshot[T]{Items: items})
		}

		if !pushList() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.lost:
				push(workouts.Snapshot[T]{Err: fmt.Errorf("subscription %s: %w", channel, err)})
				return
			case <-sub.wake:
				if !pushList() {
					return
				}
			}
		}
	}()

	return out, nil
}
