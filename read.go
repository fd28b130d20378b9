package ncd

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ReadAccessor is the read-only byte-range contract an NCD reader needs
// from its backing store: return exactly length bytes starting at offset,
// or fail with an I/O error.
type ReadAccessor interface {
	Read(ctx context.Context, offset, length uint64) ([]byte, error)
}

// Page is a page's heap bytes plus its parsed table of slot values (a
// page-local heap offset, or -1 meaning empty, represented here as a bool).
type Page struct {
	heap  []byte
	table []pageSlot
}

type pageSlot struct {
	offset uint64
	used   bool
}

// readPage fetches and parses page index from accessor.
func readPage(ctx context.Context, accessor ReadAccessor, header *Header, index uint64) (*Page, error) {
	if header.TableSizeEntries == 0 {
		return &Page{heap: nil, table: nil}, nil
	}
	buf, err := accessor.Read(ctx, header.PageOffset(index), header.PageSize())
	if err != nil {
		return nil, fmt.Errorf("%w: read page %d: %v", ErrIO, index, err)
	}
	heap := buf[:header.HeapSize]
	pl := header.PointerLength()
	table := make([]pageSlot, header.TableSizeEntries)
	unused := allSet(pl)
	tableStart := uint64(header.HeapSize)
	for i := uint64(0); i < uint64(header.TableSizeEntries); i++ {
		off := tableStart + i*uint64(pl)
		var v uint64
		switch pl {
		case 2:
			x, err := readU16(buf, off)
			if err != nil {
				return nil, err
			}
			v = uint64(x)
		default:
			x, err := readU32(buf, off)
			if err != nil {
				return nil, err
			}
			v = uint64(x)
		}
		if v == unused {
			table[i] = pageSlot{used: false}
		} else {
			table[i] = pageSlot{offset: v, used: true}
		}
	}
	stampOff := header.PageSize() - 4
	stamp, err := readU32(buf, stampOff)
	if err != nil {
		return nil, err
	}
	if stamp != header.Stamp {
		return nil, ErrWrongStamp
	}
	return &Page{heap: heap, table: table}, nil
}

// lookupEntry is the outcome of parsing one heap record: a direct value,
// a mismatched key to skip past, or the end of a probe chain.
type lookupEntry int

const (
	entrySkip lookupEntry = iota
	entryValue
	entryFinish
)

// parsedEntry is either an internal (key, value) pair or an external
// pointer (ext_offset, ext_length, ext_hash) into the overflow region.
type parsedEntry struct {
	external bool
	key      []byte
	value    []byte
	extOffset uint64
	extLength uint64
	extHash   uint32
}

// parseEntry reads one entry record from heap at offset.
func parseEntry(heap []byte, offset uint64) (*parsedEntry, error) {
	keyLenPlus1, n, err := readLesqlite2(heap, offset)
	if err != nil {
		return nil, err
	}
	offset += n
	if keyLenPlus1 == 0 {
		extOffset, n, err := readLesqlite2(heap, offset)
		if err != nil {
			return nil, err
		}
		offset += n
		extLength, n, err := readLesqlite2(heap, offset)
		if err != nil {
			return nil, err
		}
		offset += n
		extHash, err := readU32(heap, offset)
		if err != nil {
			return nil, err
		}
		return &parsedEntry{external: true, extOffset: extOffset, extLength: extLength, extHash: extHash}, nil
	}
	keyLen := keyLenPlus1 - 1
	key, err := readBytes(heap, offset, keyLen)
	if err != nil {
		return nil, err
	}
	offset += keyLen
	valueLen, n, err := readLesqlite2(heap, offset)
	if err != nil {
		return nil, err
	}
	offset += n
	value, err := readBytes(heap, offset, valueLen)
	if err != nil {
		return nil, err
	}
	return &parsedEntry{key: key, value: value}, nil
}

// resolve compares a parsed entry against key, possibly fetching the
// external record over accessor.
func (p *Page) resolve(ctx context.Context, accessor ReadAccessor, header *Header, entry *parsedEntry, key []byte, extHash uint32) (lookupEntry, []byte, error) {
	if !entry.external {
		if bytesEqual(entry.key, key) {
			return entryValue, entry.value, nil
		}
		return entrySkip, nil, nil
	}
	if entry.extHash != extHash {
		return entrySkip, nil, nil
	}
	raw, err := accessor.Read(ctx, header.StructuredSize()+entry.extOffset, entry.extLength)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read external entry: %v", ErrIO, err)
	}
	inner, err := parseEntry(raw, 0)
	if err != nil {
		return 0, nil, err
	}
	if inner.external {
		return 0, nil, fmt.Errorf("%w: recursive external reference", ErrCorruptFile)
	}
	if bytesEqual(inner.key, key) {
		return entryValue, inner.value, nil
	}
	return entrySkip, nil, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// lookup performs the open-addressed probe within a single page.
func (p *Page) lookup(ctx context.Context, accessor ReadAccessor, header *Header, hash uint64, key []byte) ([]byte, bool, error) {
	if len(p.table) == 0 {
		return nil, false, nil
	}
	extHash := header.HashExt(hash)
	start := header.HashPageSlot(hash)
	n := uint64(len(p.table))
	for i := uint64(0); i < n; i++ {
		slot := (start + i) % n
		s := p.table[slot]
		if !s.used {
			return nil, false, nil
		}
		entry, err := parseEntry(p.heap, s.offset)
		if err != nil {
			return nil, false, err
		}
		kind, value, err := p.resolve(ctx, accessor, header, entry, key, extHash)
		if err != nil {
			return nil, false, err
		}
		switch kind {
		case entryValue:
			return value, true, nil
		case entryFinish:
			return nil, false, nil
		}
	}
	return nil, false, nil
}

// FileReader reads an NCD file through a ReadAccessor, caching the parsed
// header and transparently recovering from one generation of stamp
// mismatch.
type FileReader struct {
	accessor ReadAccessor

	mu     sync.RWMutex
	header *Header
}

// OpenReader reads and parses the header from accessor, returning a ready
// FileReader.
func OpenReader(ctx context.Context, accessor ReadAccessor) (*FileReader, error) {
	buf, err := accessor.Read(ctx, 0, HeaderSize)
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrIO, err)
	}
	header, err := ReadHeader(buf)
	if err != nil {
		return nil, err
	}
	return &FileReader{accessor: accessor, header: header}, nil
}

// Header returns the reader's currently cached header.
func (r *FileReader) Header() *Header {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.header
}

// Lookup performs one probe using the currently cached header. It does not
// retry on ErrWrongStamp; callers that want recovery use Get.
func (r *FileReader) Lookup(ctx context.Context, key []byte) ([]byte, bool, error) {
	header := r.Header()
	hash := computeHash(key)
	index := header.HashPageIndex(hash)
	page, err := readPage(ctx, r.accessor, header, index)
	if err != nil {
		return nil, false, err
	}
	return page.lookup(ctx, r.accessor, header, hash, key)
}

// Get wraps Lookup with the stamp-recovery protocol: on ErrWrongStamp, the
// header is re-read; if it is unchanged, the mismatch is surfaced, else the
// cached header is replaced and the lookup retried. This repeats for as
// long as each re-read finds a new stamp.
func (r *FileReader) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	for {
		value, ok, err := r.Lookup(ctx, key)
		if err == nil {
			return value, ok, nil
		}
		if !isWrongStamp(err) {
			return nil, false, err
		}
		buf, rerr := r.accessor.Read(ctx, 0, HeaderSize)
		if rerr != nil {
			return nil, false, fmt.Errorf("%w: re-read header: %v", ErrIO, rerr)
		}
		newHeader, rerr := ReadHeader(buf)
		if rerr != nil {
			return nil, false, rerr
		}
		r.mu.Lock()
		unchanged := r.header.Stamp == newHeader.Stamp
		r.header = newHeader
		r.mu.Unlock()
		if unchanged {
			return nil, false, err
		}
		// retry with the fresh header
	}
}

func isWrongStamp(err error) bool {
	return errors.Is(err, ErrWrongStamp)
}
