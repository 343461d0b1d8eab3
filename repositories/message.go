//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/dsgolman/supportai-bot-sub000/domain"
)

type IMessageRepository interface {
	Append(m domain.Message) error
	List(groupID domain.GroupID, cursor *string) ([]domain.Message, *string, error)
}

type MessageRepository struct {
	db       *badger.DB
	log      *slog.Logger
	pageSize *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, pageSize *int) MessageRepository {
	return MessageRepository{db: db, log: log, pageSize: pageSize}
}

// Append persists a message under "msg:{group}:{timestamp_padded}:{uuid}".
// The 19-digit zero padding makes lexicographic iteration chronological, and
// the UUID suffix disconnects collisions when two messages land in the same
// nanosecond.
func (r MessageRepository) Append(m domain.Message) error {
	bytes, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", m.ID, err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(m), bytes)
	})
}

// List returns messages in append order using a prefix scan, resuming after
// the optional cursor (the key suffix of the last message already seen).
// It stops once the configured page size is reached and hands back the new
// cursor, or nil when the group's history is exhausted.
func (r MessageRepository) List(groupID domain.GroupID, cursor *string) ([]domain.Message, *string, error) {
	var messages []domain.Message
	var lastKey string
	more := false

	err := r.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(groupID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seekKey := prefix
		if cursor != nil {
			seekKey = append(append([]byte{}, prefix...), []byte(*cursor)...)
		}
		it.Seek(seekKey)

		// The cursor points at an already-delivered message, skip it.
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.pageSize != nil && len(messages) == *r.pageSize {
				more = true
				r.log.Debug(fmt.Sprintf("Page of %d messages reached", *r.pageSize))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			err := item.Value(func(value []byte) error {
				var m domain.Message
				if err := json.Unmarshal(value, &m); err != nil {
					return err
				}
				messages = append(messages, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if !more {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}
