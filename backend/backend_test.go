package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func openLocal(t *testing.T) map[string]Backend {
	t.Helper()
	dir := t.TempDir()
	bolt, err := OpenBolt(filepath.Join(dir, "bench.db"), "", false)
	if err != nil {
		t.Fatal(err)
	}
	peb, err := OpenPebble(filepath.Join(dir, "pebble"), false)
	if err != nil {
		t.Fatal(err)
	}
	backends := map[string]Backend{
		KindMemory: NewMemory(),
		KindBolt:   bolt,
		KindPebble: peb,
	}
	t.Cleanup(func() {
		for _, b := range backends {
			b.Close()
		}
	})
	return backends
}

func key(i int) []byte {
	return []byte(fmt.Sprintf("%016d", i))
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, b := range openLocal(t) {
		t.Run(name, func(t *testing.T) {
			buf := []byte("value-1")
			if err := b.Put(ctx, key(1), buf); err != nil {
				t.Fatal(err)
			}
			// the caller owns its buffers after Put returns
			copy(buf, "XXXXXXX")

			v, found, err := b.Get(ctx, key(1))
			if err != nil || !found || string(v) != "value-1" {
				t.Fatalf("Get = %q, %v, %v", v, found, err)
			}
			if _, found, err := b.Get(ctx, key(2)); err != nil || found {
				t.Fatalf("missing key: found=%v err=%v", found, err)
			}
			if err := b.Delete(ctx, key(1)); err != nil {
				t.Fatal(err)
			}
			if _, found, _ := b.Get(ctx, key(1)); found {
				t.Fatal("key still present after Delete")
			}
		})
	}
}

func TestScanBoundedAndOrdered(t *testing.T) {
	ctx := context.Background()
	for name, b := range openLocal(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 100; i++ {
				if err := b.Put(ctx, key(i), key(i)); err != nil {
					t.Fatal(err)
				}
			}

			it := b.Scan(ctx, key(20), 10)
			var got [][]byte
			for it.Next() {
				if !bytes.Equal(it.Key(), it.Value()) {
					t.Errorf("value %q does not belong to key %q", it.Value(), it.Key())
				}
				got = append(got, append([]byte(nil), it.Key()...))
			}
			if err := it.Err(); err != nil {
				t.Fatal(err)
			}
			it.Close()

			if len(got) != 10 {
				t.Fatalf("scan returned %d rows, want 10", len(got))
			}
			for i, k := range got {
				if !bytes.Equal(k, key(20+i)) {
					t.Errorf("row %d = %s, want %s", i, k, key(20+i))
				}
			}
		})
	}
}

func TestScanPastEnd(t *testing.T) {
	ctx := context.Background()
	for name, b := range openLocal(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				b.Put(ctx, key(i), []byte("v"))
			}
			it := b.Scan(ctx, key(3), 10)
			defer it.Close()
			n := 0
			for it.Next() {
				n++
			}
			if n != 2 {
				t.Errorf("scan from key 3 returned %d rows, want 2", n)
			}
			if it.Next() {
				t.Error("exhausted iterator advanced again")
			}
		})
	}
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open(context.Background(), Config{Kind: "leveldb"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Open error = %v, want ErrUnknownKind", err)
	}
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	m.Close()
	if err := m.Put(context.Background(), key(1), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close = %v", err)
	}
	if it := m.Scan(context.Background(), key(0), 1); it.Next() || !errors.Is(it.Err(), ErrClosed) {
		t.Errorf("Scan after Close err = %v", it.Err())
	}
}

func TestS3ObjectNamesKeepKeyOrder(t *testing.T) {
	c := &S3{prefix: "bench/"}
	prev := c.objectKey([]byte{0x00, 0x10})
	for _, k := range [][]byte{{0x00, 0xff}, {0x01, 0x00}, {0x7f, 0x00}, {0xff, 0x00}} {
		name := c.objectKey(k)
		if name <= prev {
			t.Fatalf("%s does not sort after %s", name, prev)
		}
		prev = name
	}
	it := c.Scan(context.Background(), []byte("0000000000000020"), 10).(*s3Iterator)
	if it.startAfter >= it.first {
		t.Errorf("listing starts after %q, beyond the first wanted name %q", it.startAfter, it.first)
	}
}
