// Package chunktable implements the in-memory chunk/offset table and its
// "table"/"table2" on-disk persistence (spec §4.4, C4).
package chunktable

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-forensics/ewfgo/codec"
	"github.com/go-forensics/ewfgo/errkind"
)

// DefaultChunksPerSection is the default cap on entries in one table
// section, overridable downward by a format policy row.
const DefaultChunksPerSection = 16384

// compressedBit marks a table entry's stored chunk as DEFLATE-compressed;
// the remaining 31 bits are the within-segment byte offset.
const compressedBit = uint32(1) << 31

// Entry is one chunk descriptor: which segment holds the chunk, its
// offset within that segment (relative to the owning sectors section's
// base), whether it's stored compressed, and its stored length. Stored
// length is derived at load time from consecutive offsets (spec §3); it
// is carried explicitly here because it is computed once and then used
// throughout the read path.
type Entry struct {
	SegmentID    uint16
	Offset       uint32
	Compressed   bool
	StoredLength uint32
}

// Table is the dense, chunk-number-indexed vector of descriptors for an
// entire image (spanning every segment's table/table2 sections).
type Table struct {
	entries []Entry
}

// New returns an empty table.
func New() *Table { return &Table{} }

// Len returns the number of chunks currently indexed.
func (t *Table) Len() int { return len(t.entries) }

// Append adds one descriptor, assigning it the next chunk number.
func (t *Table) Append(e Entry) { t.entries = append(t.entries, e) }

// Get returns the descriptor for chunkNumber.
func (t *Table) Get(chunkNumber uint64) (Entry, error) {
	if chunkNumber >= uint64(len(t.entries)) {
		return Entry{}, errkind.New(errkind.InvalidArgument, "chunktable.Get", fmt.Errorf("chunk %d out of range (have %d)", chunkNumber, len(t.entries)))
	}
	return t.entries[chunkNumber], nil
}

// wireHeader is the 16-byte fixed prefix of a table/table2 section
// payload, per spec §6: entry_count(4), padding(4), base_offset(8).
type wireHeader struct {
	EntryCount uint32
	_          uint32
	BaseOffset uint64
}

// SectionBody is a decoded, not-yet-merged table or table2 section: the
// base offset its entries are relative to, and the raw 31-bit-offset +
// compressed-bit entries as they appear on disk.
type SectionBody struct {
	BaseOffset uint64
	Raw        []uint32
}

// Encode serializes one segment's table (or table2) section payload:
// 16-byte header (entry count, reserved, base offset), a 4-byte checksum
// of that header, N 4-byte raw entries, trailing checksum over the entries.
func Encode(baseOffset uint64, raw []uint32) []byte {
	var buf bytes.Buffer
	hdr := wireHeader{EntryCount: uint32(len(raw)), BaseOffset: baseOffset}
	binary.Write(&buf, binary.LittleEndian, hdr)
	headerBytes := buf.Bytes()
	headerChecksum := codec.Checksum(headerBytes)

	out := make([]byte, 0, 16+4+len(raw)*4+4)
	out = append(out, headerBytes...)
	var checksumBytes [4]byte
	binary.LittleEndian.PutUint32(checksumBytes[:], headerChecksum)
	out = append(out, checksumBytes[:]...)

	var entriesBuf bytes.Buffer
	for _, v := range raw {
		binary.Write(&entriesBuf, binary.LittleEndian, v)
	}
	out = append(out, entriesBuf.Bytes()...)

	entriesChecksum := codec.Checksum(entriesBuf.Bytes())
	binary.LittleEndian.PutUint32(checksumBytes[:], entriesChecksum)
	out = append(out, checksumBytes[:]...)
	return out
}

// Decode parses one table/table2 section payload, verifying both the
// 16-byte header's own checksum and the trailing checksum over the entry
// array. A mismatch on either is reported so the caller (ewf.Reader)
// can fall back to table2, or to the reconstruction scan of §4.4.
func Decode(payload []byte) (SectionBody, error) {
	const headerLen = 16
	if len(payload) < headerLen+4 {
		return SectionBody{}, errkind.New(errkind.Corruption, "chunktable.Decode", fmt.Errorf("payload too short"))
	}
	var hdr wireHeader
	if err := binary.Read(bytes.NewReader(payload[:headerLen]), binary.LittleEndian, &hdr); err != nil {
		return SectionBody{}, errkind.New(errkind.Corruption, "chunktable.Decode", err)
	}
	headerChecksum := binary.LittleEndian.Uint32(payload[headerLen : headerLen+4])
	if !codec.Verify(payload[:headerLen], headerChecksum) {
		return SectionBody{}, errkind.New(errkind.Corruption, "chunktable.Decode", fmt.Errorf("table header checksum mismatch"))
	}

	entriesStart := headerLen + 4
	entriesEnd := len(payload) - 4
	if entriesEnd < entriesStart {
		return SectionBody{}, errkind.New(errkind.Corruption, "chunktable.Decode", fmt.Errorf("negative entry span"))
	}
	entriesBytes := payload[entriesStart:entriesEnd]
	if len(entriesBytes) != int(hdr.EntryCount)*4 {
		return SectionBody{}, errkind.New(errkind.Corruption, "chunktable.Decode",
			fmt.Errorf("entry count %d does not match payload size", hdr.EntryCount))
	}
	wantChecksum := binary.LittleEndian.Uint32(payload[entriesEnd:])
	if !codec.Verify(entriesBytes, wantChecksum) {
		return SectionBody{}, errkind.New(errkind.Corruption, "chunktable.Decode", fmt.Errorf("table entries checksum mismatch"))
	}

	raw := make([]uint32, hdr.EntryCount)
	if err := binary.Read(bytes.NewReader(entriesBytes), binary.LittleEndian, &raw); err != nil {
		return SectionBody{}, errkind.New(errkind.Corruption, "chunktable.Decode", err)
	}

	// Offsets must be strictly monotonic (spec §4.4 invariant ii); a
	// violation means the table is corrupt, not merely odd.
	for i := 1; i < len(raw); i++ {
		if raw[i]&^compressedBit <= raw[i-1]&^compressedBit {
			return SectionBody{}, errkind.New(errkind.Corruption, "chunktable.Decode", fmt.Errorf("offsets not strictly monotonic at entry %d", i))
		}
	}

	return SectionBody{BaseOffset: hdr.BaseOffset, Raw: raw}, nil
}

// ResolveStoredLengths converts a decoded section body into per-entry
// descriptors, deriving each stored length from the gap to the next
// entry's offset — except the last, whose length is supplied by the
// caller from the section-terminating sentinel (the "sectors" section's
// own recorded size), per spec §3/§4.4.
func ResolveStoredLengths(segmentID uint16, body SectionBody, lastEntryLength uint32, segmentSize int64) ([]Entry, error) {
	entries := make([]Entry, len(body.Raw))
	for i, raw := range body.Raw {
		compressed := raw&compressedBit != 0
		offset := raw &^ compressedBit

		var length uint32
		if i+1 < len(body.Raw) {
			next := body.Raw[i+1] &^ compressedBit
			if next <= offset {
				return nil, errkind.New(errkind.Corruption, "chunktable.ResolveStoredLengths", fmt.Errorf("non-monotonic offsets at entry %d", i))
			}
			length = next - offset
		} else {
			length = lastEntryLength
		}

		if length == 0 {
			return nil, errkind.New(errkind.Corruption, "chunktable.ResolveStoredLengths", fmt.Errorf("entry %d has zero stored length", i))
		}
		// Open question decision (SPEC_FULL.md §13): an entry whose
		// declared span runs past the segment is rejected outright,
		// never silently clamped.
		if int64(body.BaseOffset)+int64(offset)+int64(length) > segmentSize {
			return nil, errkind.New(errkind.Corruption, "chunktable.ResolveStoredLengths", fmt.Errorf("entry %d exceeds segment size", i))
		}

		entries[i] = Entry{
			SegmentID:    segmentID,
			Offset:       uint32(body.BaseOffset) + offset,
			Compressed:   compressed,
			StoredLength: length,
		}
	}
	return entries, nil
}

// EncodeEntry turns a base-offset-relative (offset, compressed) pair back
// into the raw on-disk uint32 this format uses.
func EncodeEntry(offsetFromBase uint32, compressed bool) uint32 {
	if compressed {
		return offsetFromBase | compressedBit
	}
	return offsetFromBase
}

// DecodeEntry splits a raw on-disk uint32 back into its offset and
// compressed-flag components.
func DecodeEntry(raw uint32) (offsetFromBase uint32, compressed bool) {
	return raw &^ compressedBit, raw&compressedBit != 0
}
