// Package docstore persists structured values as compressed blobs and keeps
// recently written or read blobs in a cache.
//
// Every write is stamped with a sync token from a counter that only moves
// forward. Writes, deletes and cache fills for one id are serialized by a
// striped lock, so tokens reach storage and the cache in the order they
// were issued and a deleted document is never put back in the cache. Reads
// verify the blob checksum; a damaged cache entry is
// dropped and the read falls back to storage, a damaged stored blob is
// reported as ErrCorruption.
package docstore

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/freyjadoc/pkg/blob"
	"github.com/ssargent/freyjadoc/pkg/cache"
	"github.com/ssargent/freyjadoc/pkg/compression"
	"github.com/ssargent/freyjadoc/pkg/document"
	"github.com/ssargent/freyjadoc/pkg/logging"
	"github.com/ssargent/freyjadoc/pkg/metrics"
	"github.com/ssargent/freyjadoc/pkg/schema"
	"github.com/ssargent/freyjadoc/pkg/storage"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrCorruption  = errors.New("document corrupted")
	ErrUnknownType = errors.New("unknown document type")
	// ErrWrongType is returned, together with ErrCorruption, when the
	// stored document was written as a different type than requested.
	ErrWrongType = errors.New("document has a different type")
)

const lockStripes = 64

// Store is safe for concurrent use. Individual StructValues it returns are
// not.
type Store struct {
	types     map[string]*schema.StructType
	storage   *storage.BlobStorage
	cache     *cache.Cache
	cfg       compression.Config
	syncToken atomic.Uint64
	locks     [lockStripes]sync.Mutex

	// test hooks, run with the id lock held
	beforeWrite func(id ksuid.KSUID, token uint64)
	afterLoad   func(id ksuid.KSUID)
}

// Options configures a Store. A nil Cache disables caching.
type Options struct {
	Compression compression.Config
	Cache       *cache.Cache
	Types       []*schema.StructType
}

// New returns a store over st. The sync token counter resumes after the
// highest token found in st.
func New(st *storage.BlobStorage, opts Options) (*Store, error) {
	s := &Store{
		types:   make(map[string]*schema.StructType, len(opts.Types)),
		storage: st,
		cache:   opts.Cache,
		cfg:     opts.Compression,
	}
	for _, t := range opts.Types {
		if _, dup := s.types[t.Name()]; dup {
			return nil, errors.Newf("duplicate document type %q", t.Name())
		}
		s.types[t.Name()] = t
	}

	var highest uint64
	var damaged int
	err := st.Each(func(id ksuid.KSUID, v blob.Value, err error) error {
		if err != nil {
			damaged++
			return nil
		}
		if v.SyncToken() > highest {
			highest = v.SyncToken()
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning storage for sync token")
	}
	if damaged > 0 {
		logging.Warnf("found %d damaged blobs in storage", damaged)
	}
	s.syncToken.Store(highest)
	logging.Debugf("document store ready, sync token %d", highest)
	return s, nil
}

// Type returns the registered struct type called name.
func (s *Store) Type(name string) (*schema.StructType, error) {
	t, ok := s.types[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "%q", name)
	}
	return t, nil
}

// Types returns the registered type names in sorted order.
func (s *Store) Types() []string {
	names := make([]string, 0, len(s.types))
	for name := range s.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) lock(id ksuid.KSUID) func() {
	mu := &s.locks[xxhash.Sum64(id.Bytes())%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// NewID returns a fresh document id.
func (s *Store) NewID() ksuid.KSUID { return s.storage.NewID() }

// SyncToken returns the token of the most recent write.
func (s *Store) SyncToken() uint64 { return s.syncToken.Load() }

// Put serializes v and stores it under id, replacing any previous value.
// It returns the sync token assigned to the write.
func (s *Store) Put(ctx context.Context, id ksuid.KSUID, v *document.StructValue) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	st := v.Type()
	if st == nil {
		return 0, errors.New("document has no type")
	}
	if _, err := s.Type(st.Name()); err != nil {
		return 0, err
	}

	data, err := v.Marshal(st.Compression())
	if err != nil {
		return 0, errors.Wrapf(err, "serializing %s %s", st.Name(), id)
	}

	unlock := s.lock(id)
	defer unlock()
	token := s.syncToken.Add(1)
	b := blob.New(token)
	if err := b.Set(data, len(data), s.cfg); err != nil {
		return 0, err
	}
	if s.beforeWrite != nil {
		s.beforeWrite(id, token)
	}
	if err := s.storage.Put(id, b); err != nil {
		return 0, err
	}
	if s.cache != nil {
		s.cache.Put(id.String(), b)
	}
	logging.Tracef("put %s %s token=%d size=%d/%d %s", st.Name(), id, token, b.Size(), b.UncompressedSize(), b.Compression())
	return token, nil
}

// Get loads the value stored under id as a typeName. Field values are not
// decoded until they are read.
func (s *Store) Get(ctx context.Context, typeName string, id ksuid.KSUID) (*document.StructValue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := s.Type(typeName)
	if err != nil {
		return nil, err
	}

	if data, ok, err := s.fromCache(id); err != nil {
		return nil, err
	} else if ok {
		return unmarshal(st, id, data)
	}

	data, err := s.fill(id)
	if err != nil {
		return nil, err
	}
	return unmarshal(st, id, data)
}

// fill reads id from storage, verifies it and puts it in the cache.
func (s *Store) fill(id ksuid.KSUID) ([]byte, error) {
	unlock := s.lock(id)
	defer unlock()
	b, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if s.afterLoad != nil {
		s.afterLoad(id)
	}
	data, ok, err := b.Decompressed()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Mark(errors.Newf("blob %s failed its checksum", id), ErrCorruption)
	}
	if s.cache != nil {
		s.cache.Put(id.String(), b)
	}
	return data, nil
}

func (s *Store) fromCache(id ksuid.KSUID) ([]byte, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	key := id.String()
	b, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	data, ok, err := b.Decompressed()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		logging.Warnf("cached blob %s failed its checksum, reading from storage", id)
		s.cache.Invalidate(key)
		return nil, false, nil
	}
	return data, true, nil
}

func (s *Store) load(id ksuid.KSUID) (blob.Value, error) {
	b, err := s.storage.Get(id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return blob.Value{}, errors.Wrapf(ErrNotFound, "%s", id)
	case errors.Is(err, blob.ErrBadFrame):
		return blob.Value{}, errors.Mark(err, ErrCorruption)
	case err != nil:
		return blob.Value{}, err
	}
	return b, nil
}

func unmarshal(st *schema.StructType, id ksuid.KSUID, data []byte) (*document.StructValue, error) {
	v, err := document.Unmarshal(st, data)
	if err != nil {
		err = errors.Wrapf(err, "%s %s", st.Name(), id)
		if errors.Is(err, document.ErrWrongType) {
			err = errors.Mark(err, ErrWrongType)
		}
		if errors.Is(err, document.ErrCorruption) {
			err = errors.Mark(err, ErrCorruption)
		}
		return nil, err
	}
	return v, nil
}

// Delete removes id from storage and the cache. Deleting a missing id is
// not an error.
func (s *Store) Delete(ctx context.Context, id ksuid.KSUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lock(id)
	defer unlock()
	if err := s.storage.Delete(id); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(id.String())
	}
	return nil
}

// Info describes a stored blob without decoding the document in it.
type Info struct {
	ID               string `json:"id"`
	Type             string `json:"type,omitempty"`
	SyncToken        uint64 `json:"sync_token"`
	Compression      string `json:"compression"`
	Size             int    `json:"size"`
	UncompressedSize int    `json:"uncompressed_size"`
	Checksum         uint32 `json:"checksum"`
	Valid            bool   `json:"valid"`
}

// Inspect reports the metadata of the blob stored under id. Valid is false
// when the payload fails its checksum.
func (s *Store) Inspect(ctx context.Context, id ksuid.KSUID) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	b, err := s.load(id)
	if err != nil {
		return Info{}, err
	}
	return infoOf(id, b)
}

func infoOf(id ksuid.KSUID, b blob.Value) (Info, error) {
	data, ok, err := b.Decompressed()
	if err != nil {
		return Info{}, err
	}
	var typeName string
	if ok {
		if h, _, err := schema.ReadHeader(data); err == nil {
			typeName = h.Type
		}
	}
	return Info{
		ID:               id.String(),
		Type:             typeName,
		SyncToken:        b.SyncToken(),
		Compression:      b.Compression().String(),
		Size:             b.Size(),
		UncompressedSize: b.UncompressedSize(),
		Checksum:         b.Checksum(),
		Valid:            ok,
	}, nil
}

// Scan calls fn with the metadata of every stored blob in id order. A blob
// whose frame cannot be read, or whose codec is unavailable, is reported
// with Valid false.
func (s *Store) Scan(ctx context.Context, fn func(Info) error) error {
	return s.storage.Each(func(id ksuid.KSUID, b blob.Value, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			return fn(Info{ID: id.String()})
		}
		info, err := infoOf(id, b)
		if err != nil {
			logging.Warnf("blob %s: %v", id, err)
			info = Info{ID: id.String(), SyncToken: b.SyncToken(), Compression: b.Compression().String(), Size: b.Size()}
		}
		return fn(info)
	})
}

// Cache returns the store's cache, or nil when caching is disabled.
func (s *Store) Cache() *cache.Cache { return s.cache }

func (s *Store) CacheStats() metrics.CacheStats {
	if s.cache == nil {
		return metrics.CacheStats{}
	}
	return s.cache.Stats()
}

// SnapshotCacheStats returns the cache counters accumulated since the
// previous call and starts a new period.
func (s *Store) SnapshotCacheStats() metrics.CacheStats {
	if s.cache == nil {
		return metrics.CacheStats{}
	}
	return s.cache.Snapshot()
}

// Close closes the underlying storage.
func (s *Store) Close() error {
	return s.storage.Close()
}
