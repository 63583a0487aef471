// Package store keeps the history of accepted readings in a bbolt database.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
)

const (
	metadataBucket = "metadata"
	versionKey     = "version"
	readingsBucket = "readings"

	schemaVersion = 0
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Record is one persisted reading.
type Record struct {
	// ID is assigned by Put and increases with insertion order.
	ID uint64 `cbor:"-"`

	Sequence    uint32    `cbor:"1,keyasint"`
	Temperature float32   `cbor:"2,keyasint"`
	Latitude    float64   `cbor:"3,keyasint"`
	Longitude   float64   `cbor:"4,keyasint"`
	ReceivedAt  time.Time `cbor:"5,keyasint"`
	Alarm       string    `cbor:"6,keyasint,omitempty"`
}

// Config configures a Store.
type Config struct {
	// Path is the database file. Required.
	Path string

	// MaxRecords bounds the history; the oldest records are pruned on Put.
	// Zero keeps everything.
	MaxRecords int

	// Timeout bounds waiting for the file lock (default: 1s).
	Timeout time.Duration
}

// Store is a bbolt-backed reading history. It is safe for concurrent use.
type Store struct {
	db         *bolt.DB
	enc        cbor.EncMode
	maxRecords int

	mu     sync.RWMutex
	closed bool
}

// Open creates (or loads) a store at config.Path.
func Open(config Config) (*Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("store: path is required")
	}
	if config.Timeout == 0 {
		config.Timeout = time.Second
	}

	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, err
	}

	db, err := bolt.Open(config.Path, 0600, &bolt.Options{Timeout: config.Timeout})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", config.Path, err)
	}

	if err = db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(readingsBucket)); err != nil {
			return err
		}

		if b := bkt.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != schemaVersion {
				return fmt.Errorf("store: incompatible version: %x", b)
			}
			return nil
		}

		return bkt.Put([]byte(versionKey), []byte{schemaVersion})
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:         db,
		enc:        enc,
		maxRecords: config.MaxRecords,
	}, nil
}

// Put appends a record and returns its ID.
func (s *Store) Put(r Record) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	b, err := s.enc.Marshal(&r)
	if err != nil {
		return 0, fmt.Errorf("store: encode record: %w", err)
	}

	var id uint64
	err = s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(readingsBucket))

		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		id = seq
		if err := bkt.Put(idKey(id), b); err != nil {
			return err
		}

		if s.maxRecords > 0 {
			return prune(bkt, id, s.maxRecords)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// prune deletes records older than the newest keep, given the ID just written.
// IDs are dense, so everything at or below newest-keep goes.
func prune(bkt *bolt.Bucket, newest uint64, keep int) error {
	if newest <= uint64(keep) {
		return nil
	}
	cutoff := newest - uint64(keep)

	var stale [][]byte
	cur := bkt.Cursor()
	for k, _ := cur.First(); k != nil && binary.BigEndian.Uint64(k) <= cutoff; k, _ = cur.Next() {
		stale = append(stale, append([]byte(nil), k...))
	}
	for _, k := range stale {
		if err := bkt.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Latest returns the newest record, and false if the store is empty.
func (s *Store) Latest() (Record, bool, error) {
	records, err := s.List(1)
	if err != nil || len(records) == 0 {
		return Record{}, false, err
	}
	return records[0], true, nil
}

// List returns up to limit records, newest first.
// A limit of zero or less returns everything.
func (s *Store) List(limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket([]byte(readingsBucket)).Cursor()
		for k, v := cur.Last(); k != nil; k, v = cur.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var r Record
			if err := cbor.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("store: decode record %x: %w", k, err)
			}
			r.ID = binary.BigEndian.Uint64(k)
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(readingsBucket)).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// Close syncs and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.db.Sync()
	return s.db.Close()
}

func idKey(id uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], id)
	return k[:]
}
