package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/okian/highscore/internal/domain/model"
	"github.com/okian/highscore/pkg/logger"
	"github.com/okian/highscore/pkg/metrics"
)

const (
	backendBadger       = "badger"
	submissionKeyPrefix = "submission:"
)

// BadgerStore keeps submissions in an embedded Badger database.
type BadgerStore struct {
	db   *badger.DB
	opts storeOptions
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) a database in dir. An empty dir opens an
// in-memory database.
func OpenBadger(dir string, opts ...Option) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(dir)
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	} else {
		bopts.SyncWrites = true
		bopts.CompactL0OnClose = true
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger db: %w", ErrStoreUnavailable, err)
	}

	s := &BadgerStore{db: db, opts: defaultOptions()}
	for _, opt := range opts {
		opt(&s.opts)
	}
	s.opts.logger.Info(context.Background(), "badger record store opened",
		logger.String("dir", dir),
		logger.Bool("in_memory", dir == ""),
	)
	return s, nil
}

func submissionKey(id string) []byte {
	return []byte(submissionKeyPrefix + id)
}

// Create implements Store.Create.
func (s *BadgerStore) Create(ctx context.Context, n model.NewSubmission) (sub model.Submission, err error) {
	start := time.Now()
	defer func() {
		if !errors.Is(err, ErrInvalidSubmission) {
			metrics.RecordRecordStoreOp(backendBadger, "create", float64(time.Since(start).Microseconds())/1000, err)
		}
	}()

	sub, err = s.opts.stamp(n)
	if err != nil {
		return model.Submission{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Submission{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return model.Submission{}, fmt.Errorf("marshal submission: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(submissionKey(sub.ID), data)
	})
	if err != nil {
		return model.Submission{}, fmt.Errorf("%w: save submission %s: %w", ErrStoreUnavailable, sub.ID, err)
	}
	return sub, nil
}

// Get implements Store.Get.
func (s *BadgerStore) Get(ctx context.Context, id string) (sub model.Submission, err error) {
	start := time.Now()
	defer func() {
		if !errors.Is(err, ErrNotFound) {
			metrics.RecordRecordStoreOp(backendBadger, "get", float64(time.Since(start).Microseconds())/1000, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return model.Submission{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(submissionKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sub)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Submission{}, ErrNotFound
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("%w: load submission %s: %w", ErrStoreUnavailable, id, err)
	}
	return sub, nil
}

// Count returns the number of stored submissions.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: []byte(submissionKeyPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count submissions: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Close implements Store.Close.
func (s *BadgerStore) Close() error {
	s.opts.logger.Info(context.Background(), "closing badger record store")
	return s.db.Close()
}
