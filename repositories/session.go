//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../mocks/mock_session_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/dsgolman/supportai-bot-sub000/domain"
)

type SessionRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewSessionRepository(db *badger.DB, log *slog.Logger) SessionRepository {
	return SessionRepository{db: db, log: log}
}

// Get performs a point lookup of the group's connection record.
// A missing row is reported through the found flag, never as an error.
func (r SessionRepository) Get(groupID domain.GroupID) (domain.Session, bool, error) {
	var session domain.Session
	found, err := pointGet(r.db, sessionKey(groupID), &session)
	return session, found, err
}

// Upsert persists the record with last-writer-wins semantics; the row is
// the arbitration point for concurrent session starts.
func (r SessionRepository) Upsert(session domain.Session) error {
	bytes, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.GroupID, err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(session.GroupID), bytes)
	})
}

// Delete removes the record entirely; deleting a missing row is a no-op.
func (r SessionRepository) Delete(groupID domain.GroupID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(groupID))
	})
}

// pointGet reads one key into out, reporting not-found as (false, nil).
func pointGet(db *badger.DB, key []byte, out any) (bool, error) {
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
