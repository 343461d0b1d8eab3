package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/dsgolman/supportai-bot-sub000/domain"
)

type ParticipantRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewParticipantRepository(db *badger.DB, log *slog.Logger) ParticipantRepository {
	return ParticipantRepository{db: db, log: log}
}

func (r ParticipantRepository) Get(groupID domain.GroupID, userID string) (domain.Participant, bool, error) {
	var p domain.Participant
	found, err := pointGet(r.db, participantKey(groupID, userID), &p)
	return p, found, err
}

func (r ParticipantRepository) Upsert(p domain.Participant) error {
	bytes, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode participant %s/%s: %w", p.GroupID, p.UserID, err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(participantKey(p.GroupID, p.UserID), bytes)
	})
}

// ListByGroup scans the group's participant prefix. Rows come back in
// user-id order, which is stable enough for full-list reconciliation.
func (r ParticipantRepository) ListByGroup(groupID domain.GroupID) ([]domain.Participant, error) {
	var participants []domain.Participant
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := participantPrefix(groupID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var p domain.Participant
				if err := json.Unmarshal(value, &p); err != nil {
					return err
				}
				participants = append(participants, p)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return participants, err
}
