package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dsgolman/supportai-bot-sub000/domain"
)

// BroadcastRepository carries the side audio topic: short-lived facilitator
// audio chunks, fanned out to peers by the change feed. Entries expire on
// their own; audio is transient and never part of the message history.
type BroadcastRepository struct {
	db  *badger.DB
	log *slog.Logger
	ttl time.Duration
}

func NewBroadcastRepository(db *badger.DB, log *slog.Logger, ttl time.Duration) BroadcastRepository {
	return BroadcastRepository{db: db, log: log, ttl: ttl}
}

// AppendChunk publishes one audio chunk on the group's broadcast topic.
func (r BroadcastRepository) AppendChunk(c domain.AudioChunk) error {
	bytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode audio chunk %s/%d: %w", c.GroupID, c.Seq, err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(audioChunkKey(c), bytes).WithTTL(r.ttl)
		return txn.SetEntry(entry)
	})
}

// ClaimOwner elects the single participant who re-broadcasts facilitator
// audio for the group. The store-level unique insert is the tie-break under
// concurrent joins: the first write wins, everyone else reads the winner.
func (r BroadcastRepository) ClaimOwner(groupID domain.GroupID, userID string) (string, error) {
	owner := userID
	err := r.db.Update(func(txn *badger.Txn) error {
		key := broadcastOwnerKey(groupID)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set(key, []byte(userID))
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			owner = string(value)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return owner, nil
}

// ReleaseOwner drops the claim, typically when the owner leaves the channel.
func (r BroadcastRepository) ReleaseOwner(groupID domain.GroupID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(broadcastOwnerKey(groupID))
	})
}
