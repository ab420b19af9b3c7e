package kv

import (
	"errors"

	"github.com/skshohagmiah/kvquery/internal/storage"
)

// Limits on what a single call may carry.
const (
	MaxKeyLength   = 1024
	MaxValueLength = 4<<20 - 1
	MaxBatchSize   = 128
	MaxQueryLength = 512000
	MaxResultSets  = 8
)

var (
	ErrKeyNotFound       = storage.ErrKeyNotFound
	ErrInvalidKey        = errors.New("invalid key")
	ErrInvalidDevice     = errors.New("invalid device id")
	ErrValueTooLarge     = errors.New("value too large")
	ErrBatchTooLarge     = errors.New("batch too large")
	ErrQueryTooLong      = errors.New("query too long")
	ErrNilQuery          = errors.New("query is nil")
	ErrCorruptValue      = errors.New("corrupt stored value")
	ErrTooManyResultSets = errors.New("too many open result sets")
	ErrResultSetNotFound = errors.New("result set not found")
	ErrNoEntry           = errors.New("result set is not positioned on an entry")
	ErrAlreadySubscribed = errors.New("observer already subscribed")
	ErrNotSubscribed     = errors.New("subscription not found")
	ErrClosed            = errors.New("store is closed")
)
