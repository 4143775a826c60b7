package callnum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

var (
	badgerPoolPrefix = []byte("pool/")
	badgerMetaKey    = []byte("meta/materialized")
)

// BadgerStore keeps the pool in an embedded BadgerDB, one key per unissued
// number. Badger's single-writer transactions make every pool update crash
// safe without the temp-file dance of the JSON layout.
type BadgerStore struct {
	db *badger.DB
}

// BadgerOptions configures the embedded pool store.
type BadgerOptions struct {
	// Dir is the directory for the database files. Required unless InMemory.
	Dir string
	// InMemory runs the store without disk persistence, for tests.
	InMemory bool
	// Logger receives badger's warnings and errors. nil silences them.
	Logger *slog.Logger
}

// NewBadgerStore opens the database at opts.Dir.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("callnum: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{log: opts.Logger})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger pool: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Load(ctx context.Context) ([]string, bool, error) {
	var (
		numbers      []string
		materialized bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerMetaKey); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		materialized = true

		it := txn.NewIterator(badger.IteratorOptions{Prefix: badgerPoolPrefix})
		defer it.Close()
		for it.Seek(badgerPoolPrefix); it.ValidForPrefix(badgerPoolPrefix); it.Next() {
			key := it.Item().Key()
			numbers = append(numbers, string(key[len(badgerPoolPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("load badger pool: %w", err)
	}
	if !materialized {
		return nil, false, nil
	}
	if numbers == nil {
		numbers = []string{}
	}
	return numbers, true, nil
}

func (s *BadgerStore) Save(ctx context.Context, numbers []string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: badgerPoolPrefix})
		var stale [][]byte
		for it.Seek(badgerPoolPrefix); it.ValidForPrefix(badgerPoolPrefix); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for _, n := range numbers {
			key := append(append([]byte{}, badgerPoolPrefix...), n...)
			if err := txn.Set(key, nil); err != nil {
				return err
			}
		}
		return txn.Set(badgerMetaKey, []byte{1})
	})
	if err != nil {
		return fmt.Errorf("save badger pool: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger forwards badger's complaints to slog, suppressing the chatty
// info and debug levels.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	if l.log != nil {
		l.log.Error(fmt.Sprintf("badger: "+f, v...))
	}
}

func (l badgerLogger) Warningf(f string, v ...interface{}) {
	if l.log != nil {
		l.log.Warn(fmt.Sprintf("badger: "+f, v...))
	}
}

func (l badgerLogger) Infof(string, ...interface{})  {}
func (l badgerLogger) Debugf(string, ...interface{}) {}
