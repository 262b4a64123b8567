package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnknownKind is returned by Open for an unsupported backend kind
	ErrUnknownKind = errors.New("backend: unknown kind")
	// ErrClosed is returned by operations on a closed backend
	ErrClosed = errors.New("backend: closed")
)

// Backend is the narrow key-value surface a benchmark drives. Implementations
// must be safe for concurrent use by all workers. Callers may reuse key and
// value buffers after a call returns.
type Backend interface {
	Put(ctx context.Context, key, value []byte) error
	// Get returns found=false with a nil error for a missing key
	Get(ctx context.Context, key []byte) (value []byte, found bool, err error)
	Delete(ctx context.Context, key []byte) error
	// Scan iterates at most limit entries in ascending key order starting at start
	Scan(ctx context.Context, start []byte, limit int) Iterator
	Close() error
}

// Iterator is a lazy, finite and non-restartable range cursor. Key and Value
// are valid until the next call to Next.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// Kinds accepted by Open
const (
	KindMemory = "memory"
	KindBolt   = "bolt"
	KindPebble = "pebble"
	KindRedis  = "redis"
	KindEtcd   = "etcd"
	KindS3     = "s3"
)

// Config selects and parameterises a backend
type Config struct {
	Kind string `yaml:"kind"`

	// bolt, pebble
	Path string `yaml:"path"`
	Sync bool   `yaml:"sync"`

	// redis, etcd
	Addr      string        `yaml:"addr"`
	Endpoints []string      `yaml:"endpoints"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Timeout   time.Duration `yaml:"timeout"`

	// s3 / r2
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccountID       string `yaml:"account_id"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// Prefix namespaces keys on shared servers (redis, etcd, s3)
	Prefix string `yaml:"prefix"`
}

// Open creates the backend named by cfg.Kind
func Open(ctx context.Context, cfg Config) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch strings.ToLower(cfg.Kind) {
	case KindMemory, "":
		return NewMemory(), nil
	case KindBolt:
		b, err = unwrap(OpenBolt(cfg.Path, cfg.Bucket, cfg.Sync))
	case KindPebble:
		b, err = unwrap(OpenPebble(cfg.Path, cfg.Sync))
	case KindRedis:
		b, err = unwrap(NewRedis(ctx, cfg))
	case KindEtcd:
		b, err = unwrap(NewEtcd(cfg))
	case KindS3:
		b, err = unwrap(NewS3(ctx, cfg))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	return b, err
}

// unwrap keeps a failed constructor's typed nil out of the interface
func unwrap[T Backend](b T, err error) (Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}

type entry struct {
	key   []byte
	value []byte
}

// sliceIterator walks entries materialised by a single bounded request
type sliceIterator struct {
	entries []entry
	pos     int
	err     error
}

func (it *sliceIterator) Next() bool {
	if it.err != nil || it.pos >= len(it.entries) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Key() []byte   { return it.entries[it.pos-1].key }
func (it *sliceIterator) Value() []byte { return it.entries[it.pos-1].value }
func (it *sliceIterator) Err() error    { return it.err }
func (it *sliceIterator) Close() error  { return nil }

func errIterator(err error) Iterator {
	return &sliceIterator{err: err}
}
