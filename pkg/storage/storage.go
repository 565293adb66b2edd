package storage

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/freyjadoc/pkg/blob"
	"github.com/ssargent/freyjadoc/pkg/logging"
)

var ErrNotFound = errors.New("blob not found")

// Options configures a BlobStorage.
type Options struct {
	// FS overrides the filesystem, mostly for tests with vfs.NewMem.
	FS vfs.FS
	// Sync makes every write durable before it returns.
	Sync bool
}

// BlobStorage persists blob values in pebble, keyed by KSUID.
type BlobStorage struct {
	db    *pebble.DB
	write *pebble.WriteOptions
}

type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	logging.Debugf("pebble: "+format, args...)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	logging.Errorf("pebble: "+format, args...)
	panic(fmt.Sprintf(format, args...))
}

func Open(path string, opts Options) (*BlobStorage, error) {
	po := &pebble.Options{FS: opts.FS, Logger: pebbleLogger{}}
	db, err := pebble.Open(path, po)
	if err != nil {
		return nil, errors.Wrapf(err, "opening blob storage at %s", path)
	}
	write := pebble.NoSync
	if opts.Sync {
		write = pebble.Sync
	}
	return &BlobStorage{db: db, write: write}, nil
}

// NewID returns a fresh, time-ordered key.
func (s *BlobStorage) NewID() ksuid.KSUID {
	return ksuid.New()
}

func (s *BlobStorage) Put(id ksuid.KSUID, v blob.Value) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.db.Set(id.Bytes(), data, s.write); err != nil {
		return errors.Wrapf(err, "writing blob %s", id)
	}
	return nil
}

// Get reads the blob stored under id. A frame that fails its checksum is
// reported as blob.ErrBadFrame.
func (s *BlobStorage) Get(id ksuid.KSUID) (blob.Value, error) {
	data, closer, err := s.db.Get(id.Bytes())
	if errors.Is(err, pebble.ErrNotFound) {
		return blob.Value{}, errors.Wrapf(ErrNotFound, "blob %s", id)
	}
	if err != nil {
		return blob.Value{}, errors.Wrapf(err, "reading blob %s", id)
	}
	defer closer.Close()

	var v blob.Value
	if err := v.UnmarshalBinary(data); err != nil {
		return blob.Value{}, errors.Wrapf(err, "blob %s", id)
	}
	return v, nil
}

func (s *BlobStorage) Delete(id ksuid.KSUID) error {
	if err := s.db.Delete(id.Bytes(), s.write); err != nil {
		return errors.Wrapf(err, "deleting blob %s", id)
	}
	return nil
}

// Each calls fn for every stored blob in key order, which for KSUIDs is
// creation order. Frames that fail to decode are passed to fn with their
// error so a caller can report them and carry on.
func (s *BlobStorage) Each(fn func(id ksuid.KSUID, v blob.Value, err error) error) error {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		id, err := ksuid.FromBytes(iter.Key())
		if err != nil {
			logging.Warnf("skipping key %x: %v", iter.Key(), err)
			continue
		}
		var v blob.Value
		decodeErr := v.UnmarshalBinary(iter.Value())
		if err := fn(id, v, decodeErr); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *BlobStorage) Close() error {
	return s.db.Close()
}
