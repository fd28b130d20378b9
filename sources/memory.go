package sources

import (
	"sort"

	"github.com/theflywheel/ncd"
)

// MemorySource is a ValueSource backed by an in-memory map.
type MemorySource struct {
	entries map[string][]byte
}

// NewMemorySource wraps data as a ValueSource. data is not copied; do not
// mutate it while a build is iterating the source.
func NewMemorySource(data map[string][]byte) *MemorySource {
	return &MemorySource{entries: data}
}

// Iter returns a fresh iterator. Matching the reference implementation's
// hashmap source, entries are yielded sorted by key length (not by key
// value) — an artifact of that source's construction, preserved here for
// behavioral parity; overall system correctness never depends on
// iteration order.
func (s *MemorySource) Iter() (ncd.ValueIterator, error) {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return len(keys[i]) < len(keys[j])
	})
	return &memoryIterator{source: s, keys: keys}, nil
}

type memoryIterator struct {
	source *MemorySource
	keys   []string
	pos    int
}

func (it *memoryIterator) Next() ([]byte, []byte, bool, error) {
	if it.pos >= len(it.keys) {
		return nil, nil, false, nil
	}
	k := it.keys[it.pos]
	it.pos++
	return []byte(k), it.source.entries[k], true, nil
}
