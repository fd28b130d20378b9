package ncd

import "fmt"

// Magic is the first four bytes of every NCD file, stored little-endian so
// the byte on disk at offset 0 is 0xFE.
const Magic uint32 = 0x4E00C0FE

// HeaderSize is the fixed byte length of the header.
const HeaderSize uint64 = 28

// Header describes the fixed geometry of an NCD file: how many pages it
// has, how big each page's heap and table are, and the pointer width and
// generation stamp used throughout.
type Header struct {
	NumberOfPages     uint64
	HeapSize          uint32
	TableSizeEntries  uint32
	Stamp             uint32
	pointerLength     uint32 // derived from version, not stored directly
}

// NewHeader builds a Header, choosing the narrowest pointer width that fits
// unless forcedPointerLength pins one. forcedPointerLength may be 0 (no
// preference), 2, or 4; any other value is a bad configuration.
func NewHeader(numberOfPages uint64, heapSize, tableSizeEntries uint32, forcedPointerLength uint32, stamp uint32) (*Header, error) {
	minPL := minPointerLength(heapSize, tableSizeEntries)
	pl := minPL
	if forcedPointerLength != 0 {
		if forcedPointerLength != 2 && forcedPointerLength != 4 {
			return nil, fmt.Errorf("%w: header size must be 2 or 4, got %d", ErrBadConfiguration, forcedPointerLength)
		}
		if forcedPointerLength > minPL {
			pl = forcedPointerLength
		}
	}
	return &Header{
		NumberOfPages:    numberOfPages,
		HeapSize:         heapSize,
		TableSizeEntries: tableSizeEntries,
		Stamp:            stamp,
		pointerLength:    pl,
	}, nil
}

// minPointerLength returns 2 if a page built from these sizes fits under
// 65536 bytes, else 4.
func minPointerLength(heapSize, tableSizeEntries uint32) uint32 {
	// Use the 2-byte placeholder width to estimate, matching the
	// reference implementation's own bootstrapping trick: the decision
	// only depends on whether the resulting page is small, and a 2-byte
	// table is always smaller than a 4-byte one, so checking against the
	// 2-byte size is the correct (and only) necessary/sufficient test.
	size := uint64(heapSize) + uint64(tableSizeEntries)*2 + 4
	if size < 65536 {
		return 2
	}
	return 4
}

// ReadHeader parses a Header from the first HeaderSize bytes of buf.
func ReadHeader(buf []byte) (*Header, error) {
	if err := boundsCheck(buf, 0, HeaderSize); err != nil {
		return nil, err
	}
	magic, err := readU32(buf, 0)
	if err != nil {
		return nil, err
	}
	if uint32(magic) != Magic {
		return nil, fmt.Errorf("%w: bad magic number", ErrCorruptFile)
	}
	version, err := readU32(buf, 4)
	if err != nil {
		return nil, err
	}
	var pl uint32
	switch version {
	case 1:
		pl = 2
	case 0:
		pl = 4
	default:
		return nil, fmt.Errorf("%w: bad version %d", ErrCorruptFile, version)
	}
	numberOfPages, err := readU64(buf, 8)
	if err != nil {
		return nil, err
	}
	heapSize, err := readU32(buf, 16)
	if err != nil {
		return nil, err
	}
	tableSizeEntries, err := readU32(buf, 20)
	if err != nil {
		return nil, err
	}
	stamp, err := readU32(buf, 24)
	if err != nil {
		return nil, err
	}
	h := &Header{
		NumberOfPages:    numberOfPages,
		HeapSize:         heapSize,
		TableSizeEntries: tableSizeEntries,
		Stamp:            stamp,
		pointerLength:    pl,
	}
	pageSizeCheck := uint64(tableSizeEntries)*uint64(pl) + uint64(heapSize) + 4
	if pageSizeCheck > 0xFFFFFFFF {
		return nil, fmt.Errorf("%w: page size overflow", ErrCorruptFile)
	}
	return h, nil
}

// Bytes serializes the header to its fixed 28-byte form.
func (h *Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	_ = writeU32(buf, 0, Magic)
	version := uint32(1)
	if h.pointerLength == 4 {
		version = 0
	}
	_ = writeU32(buf, 4, version)
	_ = writeU64(buf, 8, h.NumberOfPages)
	_ = writeU32(buf, 16, h.HeapSize)
	_ = writeU32(buf, 20, h.TableSizeEntries)
	_ = writeU32(buf, 24, h.Stamp)
	return buf
}

// PointerLength is 2 or 4 bytes, the width of every slot in a page's table.
func (h *Header) PointerLength() uint32 { return h.pointerLength }

// PageSize is the total byte length of one page: heap + table + trailing
// stamp.
func (h *Header) PageSize() uint64 {
	return uint64(h.HeapSize) + uint64(h.TableSizeEntries)*uint64(h.pointerLength) + 4
}

// PageOffset is the absolute file offset of page i.
func (h *Header) PageOffset(i uint64) uint64 { return h.PageSize() * i }

// TableOffset is the absolute file offset of page i's hash table.
func (h *Header) TableOffset(i uint64) uint64 {
	return h.PageOffset(i) + uint64(h.HeapSize)
}

// StampOffset is the absolute file offset of page i's trailing stamp.
func (h *Header) StampOffset(i uint64) uint64 {
	return h.PageOffset(i+1) - 4
}

// StructuredSize is the total length of the structured region (all pages,
// header included); the overflow region begins here.
func (h *Header) StructuredSize() uint64 {
	return h.PageOffset(h.NumberOfPages)
}

// UnusedValue is the sentinel slot value meaning "no entry".
func (h *Header) UnusedValue() uint64 {
	return allSet(h.pointerLength)
}

// HashPageIndex returns which page a hash lands on.
func (h *Header) HashPageIndex(hash uint64) uint64 {
	if h.TableSizeEntries == 0 || h.NumberOfPages == 0 {
		return 0
	}
	return (hash / uint64(h.TableSizeEntries)) % h.NumberOfPages
}

// HashPageSlot returns the starting probe slot within a page for a hash.
func (h *Header) HashPageSlot(hash uint64) uint64 {
	if h.TableSizeEntries == 0 {
		return 0
	}
	return hash % uint64(h.TableSizeEntries)
}

// HashExt returns the 32-bit external-entry verification hash derived from
// a key's hash.
func (h *Header) HashExt(hash uint64) uint32 {
	if h.TableSizeEntries == 0 || h.NumberOfPages == 0 {
		return 0
	}
	return uint32(((hash / uint64(h.TableSizeEntries)) / h.NumberOfPages) & 0xFFFFFFFF)
}
