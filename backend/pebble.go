package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Pebble is an embedded LSM store
type Pebble struct {
	db    *pebble.DB
	write *pebble.WriteOptions
}

// OpenPebble opens or creates a pebble store in dir
func OpenPebble(dir string, sync bool) (*Pebble, error) {
	if dir == "" {
		return nil, fmt.Errorf("pebble: path is required")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", dir, err)
	}
	write := pebble.NoSync
	if sync {
		write = pebble.Sync
	}
	return &Pebble{db: db, write: write}, nil
}

func (p *Pebble) Put(_ context.Context, key, value []byte) error {
	return p.db.Set(key, value, p.write)
}

func (p *Pebble) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	v, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	value := append([]byte(nil), v...)
	return value, true, closer.Close()
}

func (p *Pebble) Delete(_ context.Context, key []byte) error {
	return p.db.Delete(key, p.write)
}

func (p *Pebble) Scan(ctx context.Context, start []byte, limit int) Iterator {
	iter, err := p.db.NewIterWithContext(ctx, &pebble.IterOptions{LowerBound: start})
	if err != nil {
		return errIterator(err)
	}
	return &pebbleIterator{iter: iter, start: start, limit: limit}
}

func (p *Pebble) Close() error {
	return p.db.Close()
}

type pebbleIterator struct {
	iter  *pebble.Iterator
	start []byte
	limit int
	n     int
}

func (it *pebbleIterator) Next() bool {
	if it.n >= it.limit {
		return false
	}
	var ok bool
	if it.n == 0 {
		ok = it.iter.SeekGE(it.start)
	} else {
		ok = it.iter.Next()
	}
	if ok {
		it.n++
	}
	return ok
}

func (it *pebbleIterator) Key() []byte   { return it.iter.Key() }
func (it *pebbleIterator) Value() []byte { return it.iter.Value() }
func (it *pebbleIterator) Err() error    { return it.iter.Error() }
func (it *pebbleIterator) Close() error  { return it.iter.Close() }
