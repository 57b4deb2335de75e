// Package badgerstore keeps array metadata and chunks in a BadgerDB
// key-value database.
package badgerstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/qri-io/ndarray-go"
)

const StoreType = "BadgerStore"

// Store is an ndarray.Store backed by BadgerDB. Chunks are written in their
// own transactions, so a failed write never leaves a partial chunk behind.
type Store struct {
	db *badgerdb.DB
}

var _ ndarray.Store = (*Store)(nil)

// Open opens or creates a database in dir. A nil logger discards badger's
// own log output.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	return open(badgerdb.DefaultOptions(dir), logger)
}

// OpenInMemory opens a database that lives only as long as the Store.
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	return open(badgerdb.DefaultOptions("").WithInMemory(true), logger)
}

func open(opts badgerdb.Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db, err := badgerdb.Open(opts.WithLogger(&badgerLogger{logger}))
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Type() string { return StoreType }

func (s *Store) Get(key string) (io.ReadCloser, error) {
	var data []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ndarray.ErrNotFound, key)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Put(key string, val io.Reader) error {
	data, err := io.ReadAll(val)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// List returns the keys starting with prefix in lexical order.
func (s *Store) List(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			keys = append(keys, string(it.Item().Key()))
		}
		return nil
	})
	return keys, err
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's log output into slog.
type badgerLogger struct {
	log *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
