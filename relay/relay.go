// Package relay tracks presence and moves messages between a group's
// members and its facilitator connection.
//
// Subscriptions ride the change feed: the store is the source of truth and
// every delivery is a re-broadcast of a persisted row. The feed is
// at-least-once, so the relay de-duplicates by message id and keeps the
// append order the feed already guarantees per subscriber.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"

	"github.com/dsgolman/supportai-bot-sub000/contract"
	"github.com/dsgolman/supportai-bot-sub000/domain"
	"github.com/dsgolman/supportai-bot-sub000/domain/event"
	"github.com/dsgolman/supportai-bot-sub000/feed"
	"github.com/dsgolman/supportai-bot-sub000/moderation"
)

type MessageHandler func(m domain.Message)

type ParticipantsHandler func(list []domain.Participant)

type Relay struct {
	log          *slog.Logger
	source       feed.Source
	messages     contract.MessageStore
	participants contract.ParticipantStore
	registry     contract.IConnRegistry
	moderator    *moderation.Moderator
}

func New(
	log *slog.Logger,
	source feed.Source,
	messages contract.MessageStore,
	participants contract.ParticipantStore,
	registry contract.IConnRegistry,
	moderator *moderation.Moderator,
) *Relay {
	return &Relay{
		log:          log,
		source:       source,
		messages:     messages,
		participants: participants,
		registry:     registry,
		moderator:    moderator,
	}
}

// Subscription is one local consumer of a group's changes.
type Subscription struct {
	sub  *feed.Subscription
	done chan struct{}
}

// Unsubscribe releases the underlying feed registration. Idempotent and
// safe to call during teardown triggered by connection loss.
func (s *Subscription) Unsubscribe() {
	s.sub.Unsubscribe()
	<-s.done
}

// SubscribeMessages delivers each newly appended message exactly once, in
// append order. Redeliveries from the underlying feed are swallowed by an
// already-seen set keyed on message id.
func (r *Relay) SubscribeMessages(ctx context.Context, groupID domain.GroupID, onMessage MessageHandler) *Subscription {
	sub := r.source.Subscribe(feed.ForGroup[event.MessageAppended](groupID))
	done := make(chan struct{})

	go func() {
		defer close(done)
		seen := make(map[uuid.UUID]struct{})
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			case <-sub.Done():
				return
			case evt := <-sub.C:
				appended, ok := evt.(event.MessageAppended)
				if !ok {
					continue
				}
				if _, dup := seen[appended.Message.ID]; dup {
					r.log.Debug("Duplicate feed delivery swallowed", "message", appended.Message.ID)
					continue
				}
				seen[appended.Message.ID] = struct{}{}
				onMessage(appended.Message)
			}
		}
	}()

	return &Subscription{sub: sub, done: done}
}

// SubscribeParticipants recomputes and delivers the full participant list
// on any participant row change. Full lists, not deltas: client
// reconciliation stays trivial at the cost of bandwidth.
func (r *Relay) SubscribeParticipants(ctx context.Context, groupID domain.GroupID, onChange ParticipantsHandler) *Subscription {
	sub := r.source.Subscribe(feed.ForGroup[event.ParticipantChanged](groupID))
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			case <-sub.Done():
				return
			case <-sub.C:
				list, err := r.participants.ListByGroup(groupID)
				if err != nil {
					// Stale local state beats blocking; next change retries.
					r.log.Warn("Participant list not recomputed", "group", groupID, "error", err)
					continue
				}
				onChange(list)
			}
		}
	}()

	return &Subscription{sub: sub, done: done}
}

// RelayUserText persists the user's text and forwards it to the live
// facilitator connection when one exists. Durability over liveness: the
// message row is written regardless, and a missing or failing connection
// only costs the AI forwarding side.
func (r *Relay) RelayUserText(ctx context.Context, groupID domain.GroupID, userID, text string) (domain.Message, error) {
	if r.moderator != nil {
		text = r.moderator.Censor(text)
	}

	msg := domain.Message{
		ID:        uuid.New(),
		GroupID:   groupID,
		AuthorID:  userID,
		Kind:      domain.MessageText,
		Body:      text,
		Language:  detectLanguage(text),
		CreatedAt: time.Now().UTC(),
	}
	if err := r.messages.Append(msg); err != nil {
		return domain.Message{}, fmt.Errorf("persist message %s: %w", msg.ID, err)
	}

	if conn, ok := r.registry.Get(groupID); ok && conn.Alive() {
		if err := conn.SendText(ctx, text); err != nil {
			r.log.Warn("Text not forwarded to facilitator", "group", groupID, "error", err)
		}
	}
	return msg, nil
}

// Join registers a participant on first contact (name capture) and keeps
// the row across rejoins; only the display name is refreshed.
func (r *Relay) Join(ctx context.Context, groupID domain.GroupID, userID, displayName string) (domain.Participant, error) {
	existing, found, err := r.participants.Get(groupID, userID)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("load participant %s/%s: %w", groupID, userID, err)
	}
	if found {
		if displayName != "" && displayName != existing.DisplayName {
			existing.DisplayName = displayName
			if err := r.participants.Upsert(existing); err != nil {
				return domain.Participant{}, err
			}
		}
		return existing, nil
	}

	p := domain.Participant{
		GroupID:     groupID,
		UserID:      userID,
		DisplayName: displayName,
		JoinedAt:    time.Now().UTC(),
	}
	if err := r.participants.Upsert(p); err != nil {
		return domain.Participant{}, fmt.Errorf("persist participant %s/%s: %w", groupID, userID, err)
	}
	return p, nil
}

// Participants returns the group's current member list.
func (r *Relay) Participants(ctx context.Context, groupID domain.GroupID) ([]domain.Participant, error) {
	return r.participants.ListByGroup(groupID)
}

// detectLanguage tags user text so the facilitator can answer in kind.
// Unreliable detections are left empty.
func detectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6393()
}
