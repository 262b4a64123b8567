package backend

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const defaultBoltBucket = "kvbench"

// Bolt stores every key in a single bbolt bucket
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBolt opens or creates the database file at path
func OpenBolt(path, bucket string, sync bool) (*Bolt, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt: path is required")
	}
	if bucket == "" {
		bucket = defaultBoltBucket
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second, NoSync: !sync})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	b := &Bolt{db: db, bucket: []byte(bucket)}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(b.bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %q: %w", bucket, err)
	}
	return b, nil
}

func (b *Bolt) Put(_ context.Context, key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put(key, value)
	})
}

func (b *Bolt) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(b.bucket).Get(key); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

func (b *Bolt) Delete(_ context.Context, key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete(key)
	})
}

// Scan holds a read transaction until the iterator is closed
func (b *Bolt) Scan(_ context.Context, start []byte, limit int) Iterator {
	tx, err := b.db.Begin(false)
	if err != nil {
		return errIterator(err)
	}
	return &boltIterator{tx: tx, cursor: tx.Bucket(b.bucket).Cursor(), start: start, limit: limit}
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

type boltIterator struct {
	tx     *bolt.Tx
	cursor *bolt.Cursor
	start  []byte
	limit  int
	n      int
	key    []byte
	value  []byte
}

func (it *boltIterator) Next() bool {
	if it.tx == nil || it.n >= it.limit {
		return false
	}
	if it.n == 0 {
		it.key, it.value = it.cursor.Seek(it.start)
	} else {
		it.key, it.value = it.cursor.Next()
	}
	if it.key == nil {
		return false
	}
	it.n++
	return true
}

func (it *boltIterator) Key() []byte   { return it.key }
func (it *boltIterator) Value() []byte { return it.value }
func (it *boltIterator) Err() error    { return nil }

func (it *boltIterator) Close() error {
	if it.tx == nil {
		return nil
	}
	err := it.tx.Rollback()
	it.tx = nil
	return err
}
