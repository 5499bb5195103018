package audit

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const eventKeyPrefix = "audit:"

// BadgerStore persists events in BadgerDB. Keys embed the zero-padded
// timestamp so a reverse prefix scan returns the newest events first.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open database. The caller owns db and closes it.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func eventKey(e *Event) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", eventKeyPrefix, e.Timestamp.UnixNano(), e.ID))
}

// Save writes event.
func (s *BadgerStore) Save(_ context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(event), data)
	})
}

// Query scans newest to oldest and returns matching events.
func (s *BadgerStore) Query(_ context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	var out []Event
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(eventKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode Seek positions at the last key <= the seek key, so
		// seek past the end of the prefix range.
		for it.Seek([]byte(eventKeyPrefix + "\xff")); it.Valid() && len(out) < limit; it.Next() {
			var e Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode audit event %s: %w", it.Item().Key(), err)
			}
			if filter.Matches(&e) {
				out = append(out, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
