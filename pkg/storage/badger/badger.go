// Package badger provides a Badger-based implementation of the storage interface.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/autosd-vss-mw/vss-lib/pkg/storage"
	"github.com/dgraph-io/badger/v4"
)

const signalPrefix = "signal:"

// Config holds configuration for Store.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
	// InMemory runs badger without touching disk. Path is ignored.
	InMemory bool
}

// Store implements storage.Store using Badger.
type Store struct {
	db     *badger.DB
	config *Config
	// Put is read-modify-write on the count; serialize writers instead of
	// retrying on badger.ErrConflict.
	writeMu sync.Mutex
}

// NewStore opens a Badger database at config.Path.
func NewStore(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("badger config cannot be nil")
	}

	opts := badger.DefaultOptions(config.Path).WithLogger(nil)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	return &Store{
		db:     db,
		config: config,
	}, nil
}

func signalKey(name string) []byte {
	return []byte(signalPrefix + name)
}

func serialize(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &storage.SerializationError{
			Operation: "marshal",
			Cause:     err,
		}
	}
	return data, nil
}

func deserialize(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &storage.SerializationError{
			Operation: "unmarshal",
			Cause:     err,
		}
	}
	return nil
}

// Put records r as the latest reading of its signal.
func (b *Store) Put(ctx context.Context, r *storage.Reading) error {
	if r == nil {
		return fmt.Errorf("reading cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	return b.db.Update(func(txn *badger.Txn) error {
		prev, err := getInTxn(txn, r.Name)
		var nf *storage.NotFoundError
		switch {
		case err == nil:
			r.Count = prev.Count + 1
		case errors.As(err, &nf):
			r.Count = 1
		default:
			return err
		}
		if r.ReceivedAt.IsZero() {
			r.ReceivedAt = time.Now().UTC()
		}

		data, err := serialize(r)
		if err != nil {
			return err
		}
		return txn.Set(signalKey(r.Name), data)
	})
}

// Get retrieves the latest reading of name.
func (b *Store) Get(ctx context.Context, name string) (*storage.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var r *storage.Reading
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		r, err = getInTxn(txn, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func getInTxn(txn *badger.Txn, name string) (*storage.Reading, error) {
	item, err := txn.Get(signalKey(name))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, &storage.NotFoundError{Name: name}
		}
		return nil, err
	}

	var r storage.Reading
	if err := item.Value(func(val []byte) error {
		return deserialize(val, &r)
	}); err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns every stored reading. Badger iterates keys in byte order, so
// the result is already sorted by name.
func (b *Store) List(ctx context.Context) ([]*storage.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	readings := make([]*storage.Reading, 0)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(signalPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var r storage.Reading
			if err := it.Item().Value(func(val []byte) error {
				return deserialize(val, &r)
			}); err != nil {
				return err
			}
			readings = append(readings, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return readings, nil
}

// Close closes the Badger database.
func (b *Store) Close() error {
	return b.db.Close()
}
