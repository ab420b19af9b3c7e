package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrInvalidKey  = errors.New("invalid key")
)

// Options selects where and how the badger database is opened.
type Options struct {
	// Dir is the on-disk location. Ignored when InMemory is set.
	Dir        string
	InMemory   bool
	SyncWrites bool
	Logger     *zap.Logger
}

// Storage is a badger-backed byte store with prefix scans.
type Storage struct {
	db *badger.DB

	// writeMu serializes Update and DeletePrefix. Conflict detection is off,
	// so read-then-write transactions rely on it to see each other's commits.
	writeMu sync.Mutex
}

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Storage, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("storage: data dir is required unless in-memory")
	}

	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil
	if opts.Logger != nil {
		bopts.Logger = badgerLogger{opts.Logger.Named("badger").Sugar()}
	}

	bopts.NumVersionsToKeep = 1
	bopts.DetectConflicts = false
	bopts.SyncWrites = opts.SyncWrites
	bopts.ValueThreshold = 1024
	bopts.MemTableSize = 64 << 20
	bopts.BlockCacheSize = 256 << 20
	bopts.IndexCacheSize = 64 << 20
	bopts.CompactL0OnClose = false

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close closes the BadgerDB connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Get retrieves a value by key
func (s *Storage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})

	return value, err
}

// ScanPrefix calls fn for every key under prefix in key order. The value
// slice is a copy and may be retained. Returning an error from fn stops the scan.
func (s *Storage) ScanPrefix(prefix string, fn func(key string, value []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountPrefix returns the number of keys under prefix.
func (s *Storage) CountPrefix(prefix string) (int, error) {
	var count int

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})

	return count, err
}

// DeletePrefix removes every key under prefix and returns the removed keys.
func (s *Storage) DeletePrefix(prefix string) ([]string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil || len(keys) == 0 {
		return nil, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range keys {
		if err := wb.Delete([]byte(key)); err != nil {
			return nil, err
		}
	}
	if err := wb.Flush(); err != nil {
		return nil, err
	}
	return keys, nil
}
