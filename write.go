package ncd

import (
	"fmt"
	"io"
	"os"
)

// auxStore holds, per page, the next free byte offset in that page's heap.
// The reference implementation keeps this in a small temp file; we follow
// suit so memory use during a build stays proportional to page count, not
// page size.
type auxStore struct {
	file *os.File
}

func newAuxStore(numberOfPages uint64) (*auxStore, error) {
	f, err := os.CreateTemp("", "ncd-aux-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create aux file: %v", ErrIO, err)
	}
	if err := f.Truncate(int64(numberOfPages) * 8); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("%w: size aux file: %v", ErrIO, err)
	}
	return &auxStore{file: f}, nil
}

func (a *auxStore) close() error {
	name := a.file.Name()
	err := a.file.Close()
	os.Remove(name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func (a *auxStore) read(index uint64) (uint64, error) {
	buf := make([]byte, 8)
	if _, err := a.file.ReadAt(buf, int64(index)*8); err != nil {
		return 0, fmt.Errorf("%w: read aux entry %d: %v", ErrIO, index, err)
	}
	v, err := readU64(buf, 0)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (a *auxStore) write(index uint64, value uint64) error {
	buf := make([]byte, 8)
	if err := writeU64(buf, 0, value); err != nil {
		return err
	}
	if _, err := a.file.WriteAt(buf, int64(index)*8); err != nil {
		return fmt.Errorf("%w: write aux entry %d: %v", ErrIO, index, err)
	}
	return nil
}

// writeAttempt is one end-to-end pass at producing a candidate NCD file. On
// ErrHeapFull/ErrTableFull the caller (the build driver) discards it and
// starts a fresh attempt with a grown page count.
type writeAttempt struct {
	header         *Header
	file           *os.File
	aux            *auxStore
	externalOffset uint64
	threshold      uint64
}

func newWriteAttempt(header *Header, path string, threshold uint64) (*writeAttempt, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	aux, err := newAuxStore(header.NumberOfPages)
	if err != nil {
		f.Close()
		return nil, err
	}
	wa := &writeAttempt{header: header, file: f, aux: aux, threshold: threshold}
	if err := wa.prepareOutputFile(); err != nil {
		wa.abandon()
		return nil, err
	}
	if header.NumberOfPages > 0 {
		if err := wa.aux.write(0, HeaderSize); err != nil {
			wa.abandon()
			return nil, err
		}
	}
	return wa, nil
}

// abandon closes the output file and closes and deletes the aux file of a
// failed or superseded attempt without returning an error (best-effort
// cleanup). The output file itself is left on disk.
func (wa *writeAttempt) abandon() {
	if wa.aux != nil {
		wa.aux.close()
	}
	if wa.file != nil {
		wa.file.Close()
	}
}

func (wa *writeAttempt) prepareOutputFile() error {
	size := wa.header.StructuredSize()
	if err := writeBlanksToFile(wa.file, size); err != nil {
		return err
	}
	if _, err := wa.file.WriteAt(wa.header.Bytes(), 0); err != nil {
		return fmt.Errorf("%w: write header: %v", ErrIO, err)
	}
	return wa.writeBlankTables()
}

// writeBlankTables fills every page's table region with the "unused"
// sentinel and stamps its trailing 4 bytes with the header's stamp.
func (wa *writeAttempt) writeBlankTables() error {
	h := wa.header
	if h.TableSizeEntries == 0 {
		for i := uint64(0); i < h.NumberOfPages; i++ {
			stampBuf := make([]byte, 4)
			_ = writeU32(stampBuf, 0, h.Stamp)
			if _, err := wa.file.WriteAt(stampBuf, int64(h.StampOffset(i))); err != nil {
				return fmt.Errorf("%w: write page stamp: %v", ErrIO, err)
			}
		}
		return nil
	}
	tableBytes := uint64(h.TableSizeEntries) * uint64(h.PointerLength())
	blank := make([]byte, tableBytes)
	unused := allSet(h.PointerLength())
	for off := uint64(0); off+uint64(h.PointerLength()) <= tableBytes; off += uint64(h.PointerLength()) {
		switch h.PointerLength() {
		case 2:
			_ = writeU16(blank, off, uint16(unused))
		default:
			_ = writeU32(blank, off, uint32(unused))
		}
	}
	for i := uint64(0); i < h.NumberOfPages; i++ {
		if _, err := wa.file.WriteAt(blank, int64(h.TableOffset(i))); err != nil {
			return fmt.Errorf("%w: write page table: %v", ErrIO, err)
		}
		stampBuf := make([]byte, 4)
		_ = writeU32(stampBuf, 0, h.Stamp)
		if _, err := wa.file.WriteAt(stampBuf, int64(h.StampOffset(i))); err != nil {
			return fmt.Errorf("%w: write page stamp: %v", ErrIO, err)
		}
	}
	return nil
}

const writeBlockSize = 65536

// writeBlanksToFile zero-fills the first length bytes of file, in chunks,
// matching the reference implementation's write_blanks_to_file.
func writeBlanksToFile(file *os.File, length uint64) error {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	blank := make([]byte, writeBlockSize)
	for length > 0 {
		chunk := blank
		if uint64(len(chunk)) > length {
			chunk = make([]byte, length)
		}
		if _, err := file.Write(chunk); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		length -= uint64(len(chunk))
	}
	return nil
}

// heapRoom is how many more bytes page index's heap can still hold.
func (wa *writeAttempt) heapRoom(index uint64) (uint64, error) {
	threshold, err := wa.aux.read(index)
	if err != nil {
		return 0, err
	}
	if threshold > uint64(wa.header.HeapSize) {
		return 0, nil
	}
	return uint64(wa.header.HeapSize) - threshold, nil
}

// addToHeap writes record into page index's heap if there is room,
// returning its page-local offset, or fails with ErrHeapFull.
func (wa *writeAttempt) addToHeap(index uint64, record []byte) (uint64, error) {
	room, err := wa.heapRoom(index)
	if err != nil {
		return 0, err
	}
	if uint64(len(record)) > room {
		return 0, ErrHeapFull
	}
	threshold, err := wa.aux.read(index)
	if err != nil {
		return 0, err
	}
	absolute := wa.header.PageOffset(index) + threshold
	if _, err := wa.file.WriteAt(record, int64(absolute)); err != nil {
		return 0, fmt.Errorf("%w: write heap record: %v", ErrIO, err)
	}
	if err := wa.aux.write(index, threshold+uint64(len(record))); err != nil {
		return 0, err
	}
	return threshold, nil
}

// addExternalBytes appends value into the overflow region, returning its
// offset relative to the start of the overflow region (the end of the
// structured region).
func (wa *writeAttempt) addExternalBytes(value []byte) (uint64, error) {
	absolute := wa.header.StructuredSize() + wa.externalOffset
	if _, err := wa.file.WriteAt(value, int64(absolute)); err != nil {
		return 0, fmt.Errorf("%w: write external data: %v", ErrIO, err)
	}
	start := wa.externalOffset
	wa.externalOffset += uint64(len(value))
	return start, nil
}

// makeExternalPointer builds the short on-heap record that points at an
// external entry: lesqlite2(0), lesqlite2(start), lesqlite2(size), u32 hash.
func makeExternalPointer(start, size uint64, extHash uint32) ([]byte, error) {
	buf := make([]byte, 32)
	var off uint64
	n, err := writeLesqlite2(buf, off, 0)
	if err != nil {
		return nil, err
	}
	off += n
	n, err = writeLesqlite2(buf, off, start)
	if err != nil {
		return nil, err
	}
	off += n
	n, err = writeLesqlite2(buf, off, size)
	if err != nil {
		return nil, err
	}
	off += n
	if err := writeU32(buf, off, extHash); err != nil {
		return nil, err
	}
	off += 4
	return buf[:off], nil
}

// makeInternalRecord builds lesqlite2(len(key)+1), key, lesqlite2(len(value)), value.
func makeInternalRecord(key, value []byte) ([]byte, error) {
	buf := make([]byte, 18+len(key)+len(value))
	var off uint64
	n, err := writeLesqlite2(buf, off, uint64(len(key))+1)
	if err != nil {
		return nil, err
	}
	off += n
	if err := writeBytes(buf, off, key); err != nil {
		return nil, err
	}
	off += uint64(len(key))
	n, err = writeLesqlite2(buf, off, uint64(len(value)))
	if err != nil {
		return nil, err
	}
	off += n
	if err := writeBytes(buf, off, value); err != nil {
		return nil, err
	}
	off += uint64(len(value))
	return buf[:off], nil
}

// writeSlot places heapOffset into page index's table, linear probing from
// startSlot, or fails with ErrTableFull.
func (wa *writeAttempt) writeSlot(index, startSlot uint64, heapOffset uint64) error {
	h := wa.header
	if h.TableSizeEntries == 0 {
		return ErrTableFull
	}
	pl := h.PointerLength()
	unused := allSet(pl)
	for i := uint64(0); i < uint64(h.TableSizeEntries); i++ {
		slot := (startSlot + i) % uint64(h.TableSizeEntries)
		slotOffset := h.TableOffset(index) + slot*uint64(pl)
		buf := make([]byte, pl)
		if _, err := wa.file.ReadAt(buf, int64(slotOffset)); err != nil {
			return fmt.Errorf("%w: read table slot: %v", ErrIO, err)
		}
		var current uint64
		var err error
		switch pl {
		case 2:
			var v uint16
			v, err = readU16(buf, 0)
			current = uint64(v)
		default:
			var v uint32
			v, err = readU32(buf, 0)
			current = uint64(v)
		}
		if err != nil {
			return err
		}
		if current != unused {
			continue
		}
		switch pl {
		case 2:
			_ = writeU16(buf, 0, uint16(heapOffset))
		default:
			_ = writeU32(buf, 0, uint32(heapOffset))
		}
		if _, err := wa.file.WriteAt(buf, int64(slotOffset)); err != nil {
			return fmt.Errorf("%w: write table slot: %v", ErrIO, err)
		}
		return nil
	}
	return ErrTableFull
}

// add writes one (key, value) pair into the attempt, choosing an internal
// or external record shape based on the attempt's external threshold.
func (wa *writeAttempt) add(key, value []byte) error {
	hash := computeHash(key)
	index := wa.header.HashPageIndex(hash)
	slot := wa.header.HashPageSlot(hash)
	extHash := wa.header.HashExt(hash)

	record, err := makeInternalRecord(key, value)
	if err != nil {
		return err
	}

	var heapRecord []byte
	if uint64(len(record)) > wa.threshold {
		start, err := wa.addExternalBytes(record)
		if err != nil {
			return err
		}
		heapRecord, err = makeExternalPointer(start, uint64(len(record)), extHash)
		if err != nil {
			return err
		}
	} else {
		heapRecord = record
	}

	heapOffset, err := wa.addToHeap(index, heapRecord)
	if err != nil {
		return err
	}
	return wa.writeSlot(index, slot, heapOffset)
}

// addAll streams every (key, value) pair from source into the attempt and
// flushes the output file on success.
func (wa *writeAttempt) addAll(source ValueSource) error {
	it, err := source.Iter()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	for {
		key, value, ok, err := it.Next()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		if !ok {
			break
		}
		if err := wa.add(key, value); err != nil {
			return err
		}
	}
	if err := wa.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// finish closes the attempt's resources without removing the output file.
func (wa *writeAttempt) finish() error {
	if err := wa.aux.close(); err != nil {
		return err
	}
	if err := wa.file.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}
