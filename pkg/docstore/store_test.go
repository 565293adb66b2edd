package docstore

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/freyjadoc/pkg/blob"
	"github.com/ssargent/freyjadoc/pkg/cache"
	"github.com/ssargent/freyjadoc/pkg/compression"
	"github.com/ssargent/freyjadoc/pkg/document"
	"github.com/ssargent/freyjadoc/pkg/schema"
	"github.com/ssargent/freyjadoc/pkg/storage"
)

func personType() *schema.StructType {
	return schema.MustStructType("person",
		schema.Field{ID: 1, Name: "name", Type: schema.String},
		schema.Field{ID: 2, Name: "age", Type: schema.Int},
		schema.Field{ID: 3, Name: "bio", Type: schema.String},
	)
}

type fixture struct {
	store   *Store
	storage *storage.BlobStorage
	cache   *cache.Cache
	person  *schema.StructType
}

func newFixture(t *testing.T, cfg compression.Config) *fixture {
	t.Helper()
	fs := vfs.NewMem()
	bs, err := storage.Open("db", storage.Options{FS: fs})
	require.NoError(t, err)
	f := &fixture{storage: bs, cache: cache.New("docs"), person: personType()}
	f.store, err = New(bs, Options{Compression: cfg, Cache: f.cache, Types: []*schema.StructType{f.person}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.store.Close() })
	return f
}

func (f *fixture) newPerson(t *testing.T, name string, age int) *document.StructValue {
	t.Helper()
	v := document.NewStructValue(f.person)
	require.NoError(t, v.SetValueOf("name", name))
	require.NoError(t, v.SetValueOf("age", age))
	require.NoError(t, v.SetValueOf("bio", strings.Repeat(name+" likes compression. ", 20)))
	return v
}

// damage returns a copy of b whose payload no longer matches its checksum.
func damage(t *testing.T, b blob.Value, token uint64) blob.Value {
	t.Helper()
	data, err := b.MarshalBinary()
	require.NoError(t, err)
	binary.LittleEndian.PutUint64(data[4:], token)
	data[21] ^= 0xff
	binary.LittleEndian.PutUint32(data[0:], compression.Checksum(data[4:]))
	var out blob.Value
	require.NoError(t, out.UnmarshalBinary(data))
	return out
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compression.NewConfig(compression.Zstd, 3))
	id := ksuid.New()

	token, err := f.store.Put(ctx, id, f.newPerson(t, "ada", 36))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), token)

	got, err := f.store.Get(ctx, "person", id)
	require.NoError(t, err)
	assert.False(t, got.HasChanged())

	name, ok, err := got.ValueOf("name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ada", name)

	age, _, err := got.ValueOf("age")
	require.NoError(t, err)
	assert.Equal(t, int64(36), age)

	stats := f.store.CacheStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Elements)
}

func TestGetFromStorageFillsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compression.NewConfig(compression.Snappy, 0))
	id := ksuid.New()
	_, err := f.store.Put(ctx, id, f.newPerson(t, "grace", 45))
	require.NoError(t, err)

	f.cache.Invalidate(id.String())
	_, err = f.store.Get(ctx, "person", id)
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.Len())
	assert.Equal(t, uint64(1), f.store.CacheStats().Misses)
}

func TestWithoutCache(t *testing.T) {
	ctx := context.Background()
	bs, err := storage.Open("db", storage.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	st := personType()
	s, err := New(bs, Options{Compression: compression.DefaultConfig(), Types: []*schema.StructType{st}})
	require.NoError(t, err)
	defer s.Close()

	v := document.NewStructValue(st)
	require.NoError(t, v.SetValueOf("name", "linus"))
	id := ksuid.New()
	_, err = s.Put(ctx, id, v)
	require.NoError(t, err)

	got, err := s.Get(ctx, "person", id)
	require.NoError(t, err)
	name, _, err := got.ValueOf("name")
	require.NoError(t, err)
	assert.Equal(t, "linus", name)
	assert.Nil(t, s.Cache())
	assert.Zero(t, s.CacheStats())
}

func TestDamagedCacheEntryFallsBackToStorage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compression.DefaultConfig())
	id := ksuid.New()
	_, err := f.store.Put(ctx, id, f.newPerson(t, "ada", 36))
	require.NoError(t, err)

	cached, ok := f.cache.Get(id.String())
	require.True(t, ok)
	require.True(t, f.cache.Put(id.String(), damage(t, cached, cached.SyncToken()+1)))

	got, err := f.store.Get(ctx, "person", id)
	require.NoError(t, err)
	name, _, err := got.ValueOf("name")
	require.NoError(t, err)
	assert.Equal(t, "ada", name)

	fresh, ok := f.cache.Get(id.String())
	require.True(t, ok)
	_, valid, err := fresh.Decompressed()
	require.NoError(t, err)
	assert.True(t, valid, "cache was refilled from storage")
	assert.Equal(t, uint64(1), f.store.CacheStats().Invalidations)
}

func TestDamagedStorageIsCorruption(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compression.DefaultConfig())
	id := ksuid.New()
	_, err := f.store.Put(ctx, id, f.newPerson(t, "ada", 36))
	require.NoError(t, err)

	stored, err := f.storage.Get(id)
	require.NoError(t, err)
	require.NoError(t, f.storage.Put(id, damage(t, stored, stored.SyncToken())))
	f.cache.Invalidate(id.String())

	_, err = f.store.Get(ctx, "person", id)
	assert.True(t, errors.Is(err, ErrCorruption), "%+v", err)

	info, err := f.store.Inspect(ctx, id)
	require.NoError(t, err)
	assert.False(t, info.Valid)
}

func TestNotFoundAndUnknownType(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compression.DefaultConfig())

	_, err := f.store.Get(ctx, "person", ksuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.store.Get(ctx, "robot", ksuid.New())
	assert.True(t, errors.Is(err, ErrUnknownType))

	other := schema.MustStructType("robot", schema.Field{ID: 1, Name: "serial", Type: schema.String})
	_, err = f.store.Put(ctx, ksuid.New(), document.NewStructValue(other))
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compression.DefaultConfig())
	id := ksuid.New()
	_, err := f.store.Put(ctx, id, f.newPerson(t, "ada", 36))
	require.NoError(t, err)

	require.NoError(t, f.store.Delete(ctx, id))
	_, err = f.store.Get(ctx, "person", id)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 0, f.cache.Len())
	assert.NoError(t, f.store.Delete(ctx, id))
}

func TestInspect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compression.NewConfig(compression.Zstd, 3))
	id := ksuid.New()
	token, err := f.store.Put(ctx, id, f.newPerson(t, "ada", 36))
	require.NoError(t, err)

	info, err := f.store.Inspect(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id.String(), info.ID)
	assert.Equal(t, "person", info.Type)
	assert.Equal(t, token, info.SyncToken)
	assert.Equal(t, "zstd", info.Compression)
	assert.Less(t, info.Size, info.UncompressedSize)
	assert.True(t, info.Valid)
}

func TestSyncTokenResumesAfterReopen(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()
	st := personType()
	open := func() *Store {
		bs, err := storage.Open("db", storage.Options{FS: fs})
		require.NoError(t, err)
		s, err := New(bs, Options{Types: []*schema.StructType{st}})
		require.NoError(t, err)
		return s
	}

	s := open()
	for i := 0; i < 3; i++ {
		v := document.NewStructValue(st)
		require.NoError(t, v.SetValueOf("age", i))
		_, err := s.Put(ctx, ksuid.New(), v)
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	s = open()
	defer s.Close()
	assert.Equal(t, uint64(3), s.SyncToken())
}

func TestOverwriteKeepsNewest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compression.DefaultConfig())
	id := ksuid.New()

	_, err := f.store.Put(ctx, id, f.newPerson(t, "old", 1))
	require.NoError(t, err)
	_, err = f.store.Put(ctx, id, f.newPerson(t, "new", 2))
	require.NoError(t, err)

	got, err := f.store.Get(ctx, "person", id)
	require.NoError(t, err)
	name, _, err := got.ValueOf("name")
	require.NoError(t, err)
	assert.Equal(t, "new", name)
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t, compression.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.store.Get(ctx, "person", ksuid.New())
	assert.ErrorIs(t, err, context.Canceled)
	_, err = f.store.Put(ctx, ksuid.New(), f.newPerson(t, "ada", 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDuplicateTypes(t *testing.T) {
	bs, err := storage.Open("db", storage.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	defer bs.Close()
	_, err = New(bs, Options{Types: []*schema.StructType{personType(), personType()}})
	assert.Error(t, err)
}

func TestTypes(t *testing.T) {
	f := newFixture(t, compression.DefaultConfig())
	assert.Equal(t, []string{"person"}, f.store.Types())
	st, err := f.store.Type("person")
	require.NoError(t, err)
	assert.Same(t, f.person, st)
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compression.DefaultConfig())
	good, bad := ksuid.New(), ksuid.New()
	_, err := f.store.Put(ctx, good, f.newPerson(t, "ada", 36))
	require.NoError(t, err)
	_, err = f.store.Put(ctx, bad, f.newPerson(t, "bob", 40))
	require.NoError(t, err)

	stored, err := f.storage.Get(bad)
	require.NoError(t, err)
	require.NoError(t, f.storage.Put(bad, damage(t, stored, stored.SyncToken())))

	valid := map[string]bool{}
	require.NoError(t, f.store.Scan(ctx, func(info Info) error {
		valid[info.ID] = info.Valid
		return nil
	}))
	assert.Equal(t, map[string]bool{good.String(): true, bad.String(): false}, valid)
}

func TestGetAsOtherType(t *testing.T) {
	ctx := context.Background()
	bs, err := storage.Open("db", storage.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	person := personType()
	// field 1 has the same id and data type as person.name
	secret := schema.MustStructType("secret", schema.Field{ID: 1, Name: "token", Type: schema.String})
	s, err := New(bs, Options{Cache: cache.New("docs"), Types: []*schema.StructType{person, secret}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	v := document.NewStructValue(person)
	require.NoError(t, v.SetValueOf("name", "alice"))
	id := ksuid.New()
	_, err = s.Put(ctx, id, v)
	require.NoError(t, err)

	for _, from := range []string{"cache", "storage"} {
		t.Run(from, func(t *testing.T) {
			if from == "storage" {
				s.Cache().Invalidate(id.String())
			}
			got, err := s.Get(ctx, "secret", id)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, ErrWrongType))
			assert.True(t, errors.Is(err, ErrCorruption))
		})
	}

	got, err := s.Get(ctx, "person", id)
	require.NoError(t, err)
	name, _, err := got.ValueOf("name")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	info, err := s.Inspect(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "person", info.Type)
}

// waitOrTimeout waits briefly for ch. A blocked operation is left running
// and its result stays in ch.
func waitOrTimeout(ch chan error) {
	select {
	case err := <-ch:
		ch <- err
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConcurrentPutsReachStorageInTokenOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compression.DefaultConfig())
	id := ksuid.New()
	first, second := f.newPerson(t, "ada", 36), f.newPerson(t, "bob", 41)

	done := make(chan error, 1)
	var started atomic.Bool
	f.store.beforeWrite = func(ksuid.KSUID, uint64) {
		if !started.CompareAndSwap(false, true) {
			return
		}
		// the second writer takes a newer token while the first is in flight
		go func() {
			_, err := f.store.Put(ctx, id, second)
			done <- err
		}()
		waitOrTimeout(done)
	}

	token, err := f.store.Put(ctx, id, first)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), token)
	require.NoError(t, <-done)

	stored, err := f.storage.Get(id)
	require.NoError(t, err)
	cached, ok := f.cache.Get(id.String())
	require.True(t, ok)
	assert.Equal(t, uint64(2), stored.SyncToken())
	assert.Equal(t, stored.SyncToken(), cached.SyncToken())

	f.cache.Invalidate(id.String())
	v, err := f.store.Get(ctx, "person", id)
	require.NoError(t, err)
	name, _, err := v.ValueOf("name")
	require.NoError(t, err)
	assert.Equal(t, "bob", name)
}

func TestDeleteDuringCacheFill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compression.DefaultConfig())
	id := ksuid.New()
	_, err := f.store.Put(ctx, id, f.newPerson(t, "ada", 36))
	require.NoError(t, err)
	f.cache.Invalidate(id.String())

	done := make(chan error, 1)
	var started atomic.Bool
	f.store.afterLoad = func(ksuid.KSUID) {
		if !started.CompareAndSwap(false, true) {
			return
		}
		go func() { done <- f.store.Delete(ctx, id) }()
		waitOrTimeout(done)
	}

	// the read started before the delete, so it still sees the document
	v, err := f.store.Get(ctx, "person", id)
	require.NoError(t, err)
	name, _, err := v.ValueOf("name")
	require.NoError(t, err)
	assert.Equal(t, "ada", name)
	require.NoError(t, <-done)

	assert.Equal(t, 0, f.cache.Len())
	_, err = f.store.Get(ctx, "person", id)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestConcurrentPutsKeepCacheAndStorageInStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, compression.DefaultConfig())
	id := ksuid.New()

	values := make([]*document.StructValue, 16)
	for i := range values {
		values[i] = f.newPerson(t, "ada", i)
	}
	var wg sync.WaitGroup
	for _, v := range values {
		wg.Add(1)
		go func(v *document.StructValue) {
			defer wg.Done()
			_, err := f.store.Put(ctx, id, v)
			assert.NoError(t, err)
		}(v)
	}
	wg.Wait()

	stored, err := f.storage.Get(id)
	require.NoError(t, err)
	cached, ok := f.cache.Get(id.String())
	require.True(t, ok)
	assert.Equal(t, f.store.SyncToken(), stored.SyncToken())
	assert.Equal(t, stored.SyncToken(), cached.SyncToken())
}
