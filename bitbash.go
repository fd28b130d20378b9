package ncd

import (
	"encoding/binary"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// boundsCheck fails with ErrCorruptFile if [offset, offset+length) does not
// fit inside buf. Every fixed-width and lesqlite2 read goes through this
// before touching the slice.
func boundsCheck(buf []byte, offset, length uint64) error {
	if length == 0 {
		if offset > uint64(len(buf)) {
			return fmt.Errorf("%w: bad heap reference", ErrCorruptFile)
		}
		return nil
	}
	end := offset + length
	if end < offset || end > uint64(len(buf)) {
		return fmt.Errorf("%w: bad heap reference", ErrCorruptFile)
	}
	return nil
}

func readU16(buf []byte, offset uint64) (uint16, error) {
	if err := boundsCheck(buf, offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[offset : offset+2]), nil
}

func readU32(buf []byte, offset uint64) (uint32, error) {
	if err := boundsCheck(buf, offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[offset : offset+4]), nil
}

func readU64(buf []byte, offset uint64) (uint64, error) {
	if err := boundsCheck(buf, offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[offset : offset+8]), nil
}

func writeU16(buf []byte, offset uint64, v uint16) error {
	if err := boundsCheck(buf, offset, 2); err != nil {
		return fmt.Errorf("%w: %w", errScratchTooSmall, err)
	}
	binary.LittleEndian.PutUint16(buf[offset:offset+2], v)
	return nil
}

func writeU32(buf []byte, offset uint64, v uint32) error {
	if err := boundsCheck(buf, offset, 4); err != nil {
		return fmt.Errorf("%w: %w", errScratchTooSmall, err)
	}
	binary.LittleEndian.PutUint32(buf[offset:offset+4], v)
	return nil
}

func writeU64(buf []byte, offset uint64, v uint64) error {
	if err := boundsCheck(buf, offset, 8); err != nil {
		return fmt.Errorf("%w: %w", errScratchTooSmall, err)
	}
	binary.LittleEndian.PutUint64(buf[offset:offset+8], v)
	return nil
}

func readBytes(buf []byte, offset, length uint64) ([]byte, error) {
	if err := boundsCheck(buf, offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, buf[offset:offset+length])
	return out, nil
}

func writeBytes(buf []byte, offset uint64, value []byte) error {
	if err := boundsCheck(buf, offset, uint64(len(value))); err != nil {
		return fmt.Errorf("%w: %w", errScratchTooSmall, err)
	}
	copy(buf[offset:offset+uint64(len(value))], value)
	return nil
}

// allSet returns the "unused slot" sentinel for a pointer width of 2 or 4
// bytes: all bits set.
func allSet(pointerLength uint32) uint64 {
	switch pointerLength {
	case 2:
		return 0xFFFF
	case 4:
		return 0xFFFFFFFF
	default:
		return 0xFFFFFFFFFFFFFFFF
	}
}

// lesqlite2 encoding thresholds, from original_source/src/bitbash.rs.
const (
	lesqliteC0 = 178
	lesqliteC1 = 16562
	lesqliteC2 = 540850
)

// readLesqlite2 decodes a lesqlite2 varint at offset, returning the value
// and the number of bytes consumed.
func readLesqlite2(buf []byte, offset uint64) (uint64, uint64, error) {
	if err := boundsCheck(buf, offset, 1); err != nil {
		return 0, 0, err
	}
	b0 := uint64(buf[offset])
	switch {
	case b0 < lesqliteC0:
		return b0, 1, nil
	case b0 < 242:
		if err := boundsCheck(buf, offset, 2); err != nil {
			return 0, 0, err
		}
		b1 := uint64(buf[offset+1])
		return lesqliteC0 + ((b0 - lesqliteC0) << 8) + b1, 2, nil
	case b0 < 250:
		if err := boundsCheck(buf, offset, 3); err != nil {
			return 0, 0, err
		}
		b1 := uint64(buf[offset+1])
		b2 := uint64(buf[offset+2])
		return lesqliteC1 + ((b0 - 242) << 16) + (b1 << 8) + b2, 3, nil
	default:
		bytesUsed := b0 - 247
		if err := boundsCheck(buf, offset, 1+bytesUsed); err != nil {
			return 0, 0, err
		}
		var v uint64
		for i := uint64(0); i < bytesUsed; i++ {
			v |= uint64(buf[offset+1+i]) << (8 * i)
		}
		return v, 1 + bytesUsed, nil
	}
}

// writeLesqlite2 appends value to buf at offset in lesqlite2 form, using
// the shortest encoding (1 to 9 bytes), and returns the number of bytes
// written.
func writeLesqlite2(buf []byte, offset uint64, value uint64) (uint64, error) {
	switch {
	case value < lesqliteC0:
		if err := boundsCheck(buf, offset, 1); err != nil {
			return 0, fmt.Errorf("%w: %w", errScratchTooSmall, err)
		}
		buf[offset] = byte(value)
		return 1, nil
	case value < lesqliteC0+(1<<14):
		if err := boundsCheck(buf, offset, 2); err != nil {
			return 0, fmt.Errorf("%w: %w", errScratchTooSmall, err)
		}
		rel := value - lesqliteC0
		buf[offset] = byte(lesqliteC0 + (rel >> 8))
		buf[offset+1] = byte(rel & 0xFF)
		return 2, nil
	case value < lesqliteC1+(1<<19):
		if err := boundsCheck(buf, offset, 3); err != nil {
			return 0, fmt.Errorf("%w: %w", errScratchTooSmall, err)
		}
		rel := value - lesqliteC1
		buf[offset] = byte(242 + (rel >> 16))
		buf[offset+1] = byte((rel >> 8) & 0xFF)
		buf[offset+2] = byte(rel & 0xFF)
		return 3, nil
	default:
		bitsUsed := bitLength(value)
		bytesUsed := (bitsUsed + 7) / 8
		if bytesUsed < 1 {
			bytesUsed = 1
		}
		if bytesUsed > 8 {
			return 0, fmt.Errorf("%w: value too large for lesqlite2", ErrBadConfiguration)
		}
		if err := boundsCheck(buf, offset, 1+bytesUsed); err != nil {
			return 0, fmt.Errorf("%w: %w", errScratchTooSmall, err)
		}
		buf[offset] = byte(bytesUsed + 247)
		for i := uint64(0); i < bytesUsed; i++ {
			buf[offset+1+i] = byte(value >> (8 * i))
		}
		return 1 + bytesUsed, nil
	}
}

func bitLength(v uint64) uint64 {
	var n uint64
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}

// computeHash returns the high 64 bits of murmur3_x64_128(key, seed=0), the
// hash the whole on-disk partitioning scheme is built over.
func computeHash(key []byte) uint64 {
	_, h2 := murmur3.Sum128WithSeed(key, 0)
	return h2
}
