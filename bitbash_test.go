package ncd

import "testing"

func TestComputeHashLiterals(t *testing.T) {
	if got := computeHash([]byte("hello")); got != 0x5b1e906a48ae1d19 {
		t.Fatalf("computeHash(hello) = %#x, want 0x5b1e906a48ae1d19", got)
	}
	if got := computeHash([]byte("")); got != 0 {
		t.Fatalf("computeHash(\"\") = %#x, want 0", got)
	}
}

func TestLesqlite2RoundTrip(t *testing.T) {
	values := []uint64{}
	for i := uint64(0); i < 1000000; i += 997 {
		values = append(values, i)
	}
	for bits := 6; bits < 60; bits++ {
		for wiggle := int64(0); wiggle < 9; wiggle++ {
			v := (int64(1) << uint(bits)) + wiggle - 4
			if v >= 0 {
				values = append(values, uint64(v))
			}
		}
	}
	for _, v := range values {
		buf := make([]byte, 16)
		n, err := writeLesqlite2(buf, 0, v)
		if err != nil {
			t.Fatalf("writeLesqlite2(%d): %v", v, err)
		}
		got, consumed, err := readLesqlite2(buf, 0)
		if err != nil {
			t.Fatalf("readLesqlite2 after writing %d: %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip mismatch: wrote %d, read %d", v, got)
		}
		if consumed != n {
			t.Fatalf("consumed %d bytes, wrote %d", consumed, n)
		}
	}
}

func TestLesqlite2Boundaries(t *testing.T) {
	cases := []struct {
		value    uint64
		expBytes uint64
	}{
		{0, 1},
		{177, 1},
		{178, 2},
		{16561, 2},
		{16562, 3},
		{540849, 3},
		{540850, 4},
	}
	for _, c := range cases {
		buf := make([]byte, 16)
		n, err := writeLesqlite2(buf, 0, c.value)
		if err != nil {
			t.Fatalf("writeLesqlite2(%d): %v", c.value, err)
		}
		if n != c.expBytes {
			t.Fatalf("writeLesqlite2(%d) used %d bytes, want %d", c.value, n, c.expBytes)
		}
		got, _, err := readLesqlite2(buf, 0)
		if err != nil {
			t.Fatalf("readLesqlite2: %v", err)
		}
		if got != c.value {
			t.Fatalf("round trip mismatch: wrote %d, read %d", c.value, got)
		}
	}
}

func TestFixedWidthRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	if err := writeU16(buf, 0, 0xABCD); err != nil {
		t.Fatal(err)
	}
	v16, err := readU16(buf, 0)
	if err != nil || v16 != 0xABCD {
		t.Fatalf("u16 round trip: got %#x, err %v", v16, err)
	}
	if err := writeU32(buf, 0, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	v32, err := readU32(buf, 0)
	if err != nil || v32 != 0xDEADBEEF {
		t.Fatalf("u32 round trip: got %#x, err %v", v32, err)
	}
	if err := writeU64(buf, 0, 0x0123456789ABCDEF); err != nil {
		t.Fatal(err)
	}
	v64, err := readU64(buf, 0)
	if err != nil || v64 != 0x0123456789ABCDEF {
		t.Fatalf("u64 round trip: got %#x, err %v", v64, err)
	}
}

func TestPrematureEOF(t *testing.T) {
	buf := make([]byte, 1)
	if _, err := readU16(buf, 0); err == nil {
		t.Fatal("expected error reading u16 from 1-byte buffer")
	}
	if _, _, err := readLesqlite2(nil, 0); err == nil {
		t.Fatal("expected error reading lesqlite2 from empty buffer")
	}
	small := make([]byte, 1)
	if err := writeU32(small, 0, 1); err == nil {
		t.Fatal("expected error writing u32 into 1-byte buffer")
	}
}

func TestAllSet(t *testing.T) {
	if allSet(2) != 0xFFFF {
		t.Fatalf("allSet(2) = %#x", allSet(2))
	}
	if allSet(4) != 0xFFFFFFFF {
		t.Fatalf("allSet(4) = %#x", allSet(4))
	}
}
