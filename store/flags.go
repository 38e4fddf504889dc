// Package store persists the per-tab transcription preference so it
// survives daemon restarts.
package store

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// FlagStore keeps transcription flags in an embedded key-value store.
type FlagStore struct {
	db *badger.DB
}

// Open opens (or creates) the store at dir.
func Open(dir string) (*FlagStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open flag store: %w", err)
	}
	return &FlagStore{db: db}, nil
}

func flagKey(tabID int) []byte {
	return []byte(fmt.Sprintf("transcription/%d", tabID))
}

// Set records the transcription preference for a tab.
func (s *FlagStore) Set(tabID int, enabled bool) error {
	return s.db.Update(func(txn *badger.Txn) error {
		v := []byte{0}
		if enabled {
			v[0] = 1
		}
		return txn.Set(flagKey(tabID), v)
	})
}

// Get reports the transcription preference for a tab. Unknown tabs read
// as disabled.
func (s *FlagStore) Get(tabID int) (bool, error) {
	var enabled bool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(flagKey(tabID))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			enabled = len(v) == 1 && v[0] == 1
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return enabled, nil
}

// Delete drops the preference for a tab.
func (s *FlagStore) Delete(tabID int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(flagKey(tabID))
	})
}

func (s *FlagStore) Close() error {
	return s.db.Close()
}
