// pgstore/listen.go
package pgstore

import (
	"context"
	"sort"
	"time"

	"github.com/vinizap/pronode/remote"
)

// listen holds a dedicated connection on Channel and re-reads overlapping
// subscriptions for every notification. After a lost connection every
// subscription is refreshed, since notifications may have been missed.
func (s *Store) listen(ctx context.Context) {
	defer close(s.done)
	first := true
	for {
		if err := s.listenOnce(ctx, !first); err != nil && ctx.Err() == nil {
			s.log.Warn().Err(err).Dur("retry_in", s.reconnectDelay).Msg("listener lost")
		}
		first = false
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Store) listenOnce(ctx context.Context, refresh bool) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return mapError(err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return mapError(err)
	}
	if refresh {
		s.notify(ctx, "")
	}
	s.log.Debug().Msg("listening for changes")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return mapError(err)
		}
		s.notify(ctx, n.Payload)
	}
}

// notify delivers fresh snapshots to every subscription overlapping path.
func (s *Store) notify(ctx context.Context, path string) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	ids := make([]uint64, 0, len(s.subs))
	for id, sub := range s.subs {
		if remote.Overlaps(sub.path, path) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	subs := make([]*subscription, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	for _, sub := range subs {
		snap, err := s.snapshot(ctx, sub)
		if err != nil {
			s.log.Error().Err(err).Str("path", sub.path).Msg("refresh subscription")
			continue
		}
		s.mu.Lock()
		closed := sub.closed
		s.mu.Unlock()
		if !closed {
			sub.fn(snap)
		}
	}
}
