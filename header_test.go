package ncd

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	h, err := NewHeader(10, 2000, 128, 0, 0xCAFEBABE)
	if err != nil {
		t.Fatal(err)
	}
	buf := h.Bytes()
	if len(buf) != int(HeaderSize) {
		t.Fatalf("header bytes length = %d, want %d", len(buf), HeaderSize)
	}
	parsed, err := ReadHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.NumberOfPages != h.NumberOfPages || parsed.HeapSize != h.HeapSize ||
		parsed.TableSizeEntries != h.TableSizeEntries || parsed.Stamp != h.Stamp ||
		parsed.PointerLength() != h.PointerLength() {
		t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, h)
	}
}

func TestHeaderMagicAndVersion(t *testing.T) {
	h, err := NewHeader(1, 100, 10, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	buf := h.Bytes()
	if buf[0] != 0xFE || buf[1] != 0xC0 || buf[2] != 0x00 || buf[3] != 0x4E {
		t.Fatalf("unexpected magic bytes: % x", buf[:4])
	}
}

func TestHeaderBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 0x00
	if _, err := ReadHeader(buf); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestHeaderUnsupportedVersion(t *testing.T) {
	h, err := NewHeader(1, 100, 10, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	buf := h.Bytes()
	_ = writeU32(buf, 4, 7)
	if _, err := ReadHeader(buf); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestHeaderForcedPointerWidth(t *testing.T) {
	h, err := NewHeader(1, 100, 10, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.PointerLength() != 4 {
		t.Fatalf("PointerLength() = %d, want 4", h.PointerLength())
	}
	h2, err := NewHeader(1, 100, 10, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if h2.PointerLength() != 2 {
		t.Fatalf("natural PointerLength() = %d, want 2", h2.PointerLength())
	}
}

func TestHeaderBadForcedPointerWidth(t *testing.T) {
	if _, err := NewHeader(1, 100, 10, 3, 0); err == nil {
		t.Fatal("expected error for forced pointer width of 3")
	}
}

func TestHeaderOffsets(t *testing.T) {
	h, err := NewHeader(4, 100, 10, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	pageSize := h.PageSize()
	if h.PageOffset(1) != pageSize {
		t.Fatalf("PageOffset(1) = %d, want %d", h.PageOffset(1), pageSize)
	}
	if h.TableOffset(0) != 100 {
		t.Fatalf("TableOffset(0) = %d, want 100", h.TableOffset(0))
	}
	if h.StampOffset(0) != pageSize-4 {
		t.Fatalf("StampOffset(0) = %d, want %d", h.StampOffset(0), pageSize-4)
	}
	if h.StructuredSize() != pageSize*4 {
		t.Fatalf("StructuredSize() = %d, want %d", h.StructuredSize(), pageSize*4)
	}
}

func TestHashPartitioning(t *testing.T) {
	h, err := NewHeader(10, 100, 20, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	hash := uint64(123456789)
	page := h.HashPageIndex(hash)
	slot := h.HashPageSlot(hash)
	ext := h.HashExt(hash)
	if page != (hash/20)%10 {
		t.Fatalf("HashPageIndex = %d, want %d", page, (hash/20)%10)
	}
	if slot != hash%20 {
		t.Fatalf("HashPageSlot = %d, want %d", slot, hash%20)
	}
	if ext != uint32(((hash/20)/10)&0xFFFFFFFF) {
		t.Fatalf("HashExt = %d, want %d", ext, uint32(((hash/20)/10)&0xFFFFFFFF))
	}
}

func TestHashPartitioningEmptyTable(t *testing.T) {
	h, err := NewHeader(10, 100, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.HashPageIndex(12345) != 0 {
		t.Fatal("HashPageIndex should be 0 when table_size_entries is 0")
	}
	if h.HashExt(12345) != 0 {
		t.Fatal("HashExt should be 0 when table_size_entries is 0")
	}
}
