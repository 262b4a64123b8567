package backend

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
)

const defaultEtcdTimeout = 5 * time.Second

// Etcd drives an etcd v3 cluster. Every key lives under cfg.Prefix.
type Etcd struct {
	cli    *clientv3.Client
	prefix string
}

// NewEtcd dials the endpoints and blocks until a connection is up or the
// timeout elapses
func NewEtcd(cfg Config) (*Etcd, error) {
	endpoints := cfg.Endpoints
	if len(endpoints) == 0 && cfg.Addr != "" {
		endpoints = []string{cfg.Addr}
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("etcd: at least one endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultEtcdTimeout
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: timeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialOptions: []grpc.DialOption{grpc.WithBlock()},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to etcd at %v: %w", endpoints, err)
	}
	return &Etcd{cli: cli, prefix: cfg.Prefix}, nil
}

func (e *Etcd) Put(ctx context.Context, key, value []byte) error {
	_, err := e.cli.Put(ctx, e.prefix+string(key), string(value))
	return err
}

func (e *Etcd) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	resp, err := e.cli.Get(ctx, e.prefix+string(key))
	if err != nil {
		return nil, false, err
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

func (e *Etcd) Delete(ctx context.Context, key []byte) error {
	_, err := e.cli.Delete(ctx, e.prefix+string(key))
	return err
}

// Scan issues one bounded range request
func (e *Etcd) Scan(ctx context.Context, start []byte, limit int) Iterator {
	if limit <= 0 {
		return &sliceIterator{}
	}
	end := clientv3.WithFromKey()
	if e.prefix != "" {
		end = clientv3.WithRange(clientv3.GetPrefixRangeEnd(e.prefix))
	}
	resp, err := e.cli.Get(ctx, e.prefix+string(start),
		end,
		clientv3.WithLimit(int64(limit)),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	)
	if err != nil {
		return errIterator(err)
	}
	it := &sliceIterator{entries: make([]entry, 0, len(resp.Kvs))}
	for _, kv := range resp.Kvs {
		it.entries = append(it.entries, entry{key: kv.Key[len(e.prefix):], value: kv.Value})
	}
	return it
}

func (e *Etcd) Close() error {
	return e.cli.Close()
}
