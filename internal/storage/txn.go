package storage

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// Txn is a read-write transaction handed to Update.
type Txn struct {
	txn *badger.Txn
}

// Get reads key inside the transaction, seeing the transaction's own writes.
func (t *Txn) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	item, err := t.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *Txn) Set(key string, value []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	return t.txn.Set([]byte(key), value)
}

func (t *Txn) Delete(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return t.txn.Delete([]byte(key))
}

// Update runs fn in a single atomic write. Nothing is written if fn fails.
// Updates run one at a time, so reads inside fn see every earlier commit.
func (s *Storage) Update(fn func(txn *Txn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn})
	})
}
