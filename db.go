package arbor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

// Store is a Backend over a local transactional key-value storage, either a
// Bolt file (OpenBolt) or process memory (NewMemStore). Each kind lives in
// its own bucket, keyed by entity name, with values in the EncodeValue form.
type Store struct {
	st      storage
	bdb     *bbolt.DB
	logf    func(format string, args ...any)
	verbose bool

	stats statsCounters

	ReaderCount atomic.Int64
	WriterCount atomic.Int64
}

var _ Backend = (*Store)(nil)

type StoreOptions struct {
	Logf      func(format string, args ...any)
	Verbose   bool
	IsTesting bool
	MmapSize  int
}

func OpenBolt(path string, opt StoreOptions) (*Store, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("arbor: %w", err)
	}
	s := newStore(newBoltStorage(bdb), opt)
	s.bdb = bdb
	return s, nil
}

// NewMemStore returns a Store that keeps everything in memory, for tests and
// caches.
func NewMemStore(opt StoreOptions) *Store {
	return newStore(newMemStorage(), opt)
}

func newStore(st storage, opt StoreOptions) *Store {
	logf := opt.Logf
	if logf == nil {
		logf = func(format string, args ...any) {}
	}
	return &Store{
		st:      st,
		logf:    logf,
		verbose: opt.Verbose,
	}
}

// Bolt returns the underlying Bolt database, or nil for a memory store.
func (s *Store) Bolt() *bbolt.DB {
	return s.bdb
}

func (s *Store) Close() error {
	err := s.st.Close()
	if err != nil {
		return fmt.Errorf("arbor: closing: %w", err)
	}
	return nil
}

// Stats returns the number of batches and entities the store has been asked
// to process.
func (s *Store) Stats() Stats {
	return s.stats.snapshot()
}

func (s *Store) SubmitWrites(ctx context.Context, writes []Write) *Async[struct{}] {
	s.stats.record(OpSave, len(writes))
	return Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.update(func(tx storageTx) error {
			for _, w := range writes {
				b, err := tx.CreateBucket(w.Key.Kind)
				if err != nil {
					return err
				}
				raw, err := EncodeValue(w.Node)
				if err != nil {
					return fmt.Errorf("%v: %w", w.Key, err)
				}
				if s.verbose {
					s.logf("arbor: store PUT %v => %s", w.Key, Dump(w.Node))
				}
				if err := b.Put([]byte(w.Key.Name), raw); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (s *Store) SubmitDeletes(ctx context.Context, keys []Key) *Async[struct{}] {
	s.stats.record(OpDelete, len(keys))
	return Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.update(func(tx storageTx) error {
			for _, k := range keys {
				b := tx.Bucket(k.Kind)
				if b == nil {
					continue
				}
				if s.verbose {
					s.logf("arbor: store DELETE %v", k)
				}
				if err := b.Delete([]byte(k.Name)); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (s *Store) SubmitReads(ctx context.Context, keys []Key) *Async[[]Node] {
	s.stats.record(OpLoad, len(keys))
	return Go(ctx, func(ctx context.Context) ([]Node, error) {
		nodes := make([]Node, len(keys))
		err := s.view(func(tx storageTx) error {
			for i, k := range keys {
				b := tx.Bucket(k.Kind)
				if b == nil {
					continue
				}
				raw := b.Get([]byte(k.Name))
				if raw == nil {
					continue
				}
				node, err := DecodeValue(raw)
				if err != nil {
					return fmt.Errorf("%v: %w", k, err)
				}
				nodes[i] = node
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return nodes, nil
	})
}

// KindStats reports storage usage of one kind.
func (s *Store) KindStats(kind string) (KindStats, error) {
	var result KindStats
	err := s.view(func(tx storageTx) error {
		if b := tx.Bucket(kind); b != nil {
			bs := b.Stats()
			result = KindStats{
				Entities:  bs.KeyN,
				DataSize:  bs.LeafInuse,
				DataAlloc: bs.TotalAlloc(),
			}
		}
		return nil
	})
	return result, err
}

func (s *Store) update(f func(tx storageTx) error) error {
	s.WriterCount.Add(1)
	defer s.WriterCount.Add(-1)
	tx, err := s.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) view(f func(tx storageTx) error) error {
	s.ReaderCount.Add(1)
	defer s.ReaderCount.Add(-1)
	tx, err := s.st.BeginTx(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}
