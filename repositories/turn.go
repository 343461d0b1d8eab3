package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/dsgolman/supportai-bot-sub000/domain"
)

type TurnRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewTurnRepository(db *badger.DB, log *slog.Logger) TurnRepository {
	return TurnRepository{db: db, log: log}
}

func (r TurnRepository) Get(groupID domain.GroupID) (domain.TurnState, bool, error) {
	var state domain.TurnState
	found, err := pointGet(r.db, turnKey(groupID), &state)
	return state, found, err
}

func (r TurnRepository) Put(state domain.TurnState) error {
	bytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode turn state %s: %w", state.GroupID, err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(turnKey(state.GroupID), bytes)
	})
}

// Reset writes the implicit empty state: no speaker, empty queue.
// Writing (rather than deleting) keeps a change-feed event flowing to
// subscribers that mirror turn state.
func (r TurnRepository) Reset(groupID domain.GroupID) error {
	return r.Put(domain.EmptyTurnState(groupID))
}
