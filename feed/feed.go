// Package feed turns the store's row-change notifications into typed events.
//
// A single dispatch loop reads BadgerDB subscription batches, decodes each
// row into a domain change event, and forwards it to every matching
// subscriber over a bounded channel. Ordering and back-pressure are explicit:
// events reach each subscriber in store-notification order, and a slow
// subscriber slows the loop instead of silently losing events. Delivery is
// at-least-once; de-duplication belongs to the consumer.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"

	"github.com/dsgolman/supportai-bot-sub000/domain"
	"github.com/dsgolman/supportai-bot-sub000/domain/event"
	"github.com/dsgolman/supportai-bot-sub000/repositories"
)

// Filter selects which change events a subscriber wants.
type Filter func(e event.ChangeEvent) bool

// Source is the subscription surface consumed by the relay and the media
// orchestrator. It is satisfied by *Feed.
type Source interface {
	Subscribe(filter Filter) *Subscription
}

type Feed struct {
	db     *badger.DB
	log    *slog.Logger
	buffer int

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func New(db *badger.DB, log *slog.Logger, bufferSize int) *Feed {
	return &Feed{
		db:     db,
		log:    log,
		buffer: bufferSize,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscription is one bounded consumer channel. Read from C until it is
// closed; Unsubscribe is idempotent and safe during teardown.
type Subscription struct {
	C <-chan event.ChangeEvent

	ch     chan event.ChangeEvent
	filter Filter
	done   chan struct{}
	once   sync.Once
	feed   *Feed
}

// Subscribe registers a bounded subscriber channel on the dispatch loop.
func (f *Feed) Subscribe(filter Filter) *Subscription {
	ch := make(chan event.ChangeEvent, f.buffer)
	sub := &Subscription{
		C:      ch,
		ch:     ch,
		filter: filter,
		done:   make(chan struct{}),
		feed:   f,
	}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	return sub
}

// Done is closed when the subscription is released.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe releases the underlying registration. Calling it repeatedly,
// or while the feed is mid-dispatch, is safe. The event channel is left
// open (and unread events abandoned) so a concurrent dispatch never writes
// to a closed channel.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
	})
}

// Run implements contract.Worker. It holds the store subscription for the
// process lifetime and dispatches every decoded row change.
func (f *Feed) Run(ctx context.Context) error {
	matches := []pb.Match{
		{Prefix: []byte(repositories.PrefixSession)},
		{Prefix: []byte(repositories.PrefixTurn)},
		{Prefix: []byte(repositories.PrefixParticipant)},
		{Prefix: []byte(repositories.PrefixMessage)},
		{Prefix: []byte(repositories.PrefixAudioBroadcast)},
	}

	err := f.db.Subscribe(ctx, func(kvs *badger.KVList) error {
		for _, kv := range kvs.Kv {
			evt, ok := f.decode(kv.Key, kv.Value)
			if !ok {
				continue
			}
			if err := f.dispatch(ctx, evt); err != nil {
				return err
			}
		}
		return nil
	}, matches)

	if ctx.Err() != nil {
		f.log.Debug("Context done, stopping change feed")
		return ctx.Err()
	}
	return err
}

// dispatch forwards one event to every matching subscriber, in registration
// order, blocking when a bounded channel is full.
func (f *Feed) dispatch(ctx context.Context, evt event.ChangeEvent) error {
	f.mu.RLock()
	subs := make([]*Subscription, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.RUnlock()

	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(evt) {
			continue
		}
		select {
		case <-sub.done:
		case sub.ch <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// decode maps a raw row change onto a typed event by key prefix.
// An empty value marks a deleted row.
func (f *Feed) decode(key, value []byte) (event.ChangeEvent, bool) {
	k := string(key)
	deleted := len(value) == 0

	switch {
	case strings.HasPrefix(k, repositories.PrefixSession):
		groupID, _ := repositories.GroupFromKey(k)
		if deleted {
			return event.SessionChanged{Op: event.OpDelete, Group: groupID}, true
		}
		var s domain.Session
		if err := json.Unmarshal(value, &s); err != nil {
			f.log.Warn("Undecodable session row", "key", k, "error", err)
			return nil, false
		}
		return event.SessionChanged{Op: event.OpSet, Group: groupID, Session: s}, true

	case strings.HasPrefix(k, repositories.PrefixTurn):
		if deleted {
			return nil, false
		}
		var t domain.TurnState
		if err := json.Unmarshal(value, &t); err != nil {
			f.log.Warn("Undecodable turn row", "key", k, "error", err)
			return nil, false
		}
		return event.TurnChanged{Op: event.OpSet, Turn: t}, true

	case strings.HasPrefix(k, repositories.PrefixParticipant):
		if deleted {
			return nil, false
		}
		var p domain.Participant
		if err := json.Unmarshal(value, &p); err != nil {
			f.log.Warn("Undecodable participant row", "key", k, "error", err)
			return nil, false
		}
		return event.ParticipantChanged{Op: event.OpSet, Participant: p}, true

	case strings.HasPrefix(k, repositories.PrefixMessage):
		if deleted {
			return nil, false
		}
		var m domain.Message
		if err := json.Unmarshal(value, &m); err != nil {
			f.log.Warn("Undecodable message row", "key", k, "error", err)
			return nil, false
		}
		return event.MessageAppended{Message: m}, true

	case strings.HasPrefix(k, repositories.PrefixAudioBroadcast):
		if deleted {
			return nil, false
		}
		var c domain.AudioChunk
		if err := json.Unmarshal(value, &c); err != nil {
			f.log.Warn("Undecodable audio chunk row", "key", k, "error", err)
			return nil, false
		}
		return event.AudioBroadcast{Chunk: c}, true
	}
	return nil, false
}

// ForGroup builds the common "one group, given event kinds" filter.
func ForGroup[T event.ChangeEvent](groupID domain.GroupID) Filter {
	return func(e event.ChangeEvent) bool {
		if e.GroupID() != groupID {
			return false
		}
		_, ok := e.(T)
		return ok
	}
}
