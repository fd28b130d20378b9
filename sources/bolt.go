package sources

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/theflywheel/ncd"
)

// BoltSource is a ValueSource over a named bucket of a read-only bbolt
// database, standing in for the reference implementation's GDBM source
// (gdbm is a cgo-only dependency with no pure-Go pack equivalent).
type BoltSource struct {
	db     *bbolt.DB
	bucket []byte
}

// NewBoltSource opens path read-only and wraps bucket as a ValueSource.
// The caller is responsible for calling Close when done.
func NewBoltSource(path string, bucket string) (*BoltSource, error) {
	db, err := bbolt.Open(path, 0o444, &bbolt.Options{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("sources: open bolt db %s: %w", path, err)
	}
	return &BoltSource{db: db, bucket: []byte(bucket)}, nil
}

// Close closes the underlying database handle.
func (s *BoltSource) Close() error {
	return s.db.Close()
}

// Iter walks the bucket's cursor in key order, buffering all pairs up
// front so the returned iterator does not hold the bbolt transaction open
// across calls to Next.
func (s *BoltSource) Iter() (ncd.ValueIterator, error) {
	var keys, values [][]byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return fmt.Errorf("sources: bucket %q not found", s.bucket)
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			kc := append([]byte(nil), k...)
			vc := append([]byte(nil), v...)
			keys = append(keys, kc)
			values = append(values, vc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &boltIterator{keys: keys, values: values}, nil
}

type boltIterator struct {
	keys, values [][]byte
	pos          int
}

func (it *boltIterator) Next() ([]byte, []byte, bool, error) {
	if it.pos >= len(it.keys) {
		return nil, nil, false, nil
	}
	k, v := it.keys[it.pos], it.values[it.pos]
	it.pos++
	return k, v, true, nil
}
