package section

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-forensics/ewfgo/codec"
	"github.com/go-forensics/ewfgo/errkind"
)

// Digest is the decoded "digest" section payload (MD5 + SHA-1), emitted
// only by variants whose policy row sets HasDigest.
type Digest struct {
	MD5  [16]byte
	SHA1 [20]byte
}

type wireDigest struct {
	MD5      [16]byte
	SHA1     [20]byte
	Reserved [40]byte
	CheckSum uint32
}

// EncodeDigest serializes d with its trailing Adler-32.
func EncodeDigest(d Digest) []byte {
	w := wireDigest{MD5: d.MD5, SHA1: d.SHA1}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, w)
	payload := buf.Bytes()
	binary.LittleEndian.PutUint32(payload[len(payload)-4:], codec.Checksum(payload[:len(payload)-4]))
	return payload
}

// DecodeDigest parses a "digest" section payload.
func DecodeDigest(payload []byte) (Digest, error) {
	var w wireDigest
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &w); err != nil {
		return Digest{}, errkind.New(errkind.Corruption, "section.DecodeDigest", err)
	}
	if !codec.Verify(payload[:len(payload)-4], w.CheckSum) {
		return Digest{}, errkind.New(errkind.Corruption, "section.DecodeDigest", fmt.Errorf("checksum mismatch"))
	}
	return Digest{MD5: w.MD5, SHA1: w.SHA1}, nil
}

// Hash is the decoded "hash" section payload. Every variant emits this;
// SHA1 is all-zero when the writer was not asked to calculate it.
type Hash struct {
	MD5  [16]byte
	SHA1 [20]byte
}

// EncodeHash and DecodeHash share Digest's wire shape — the format uses
// the same 16+20+40+4 layout for both sections.
func EncodeHash(h Hash) []byte {
	return EncodeDigest(Digest(h))
}

func DecodeHash(payload []byte) (Hash, error) {
	d, err := DecodeDigest(payload)
	return Hash(d), err
}

// ErrorEntry is one (start_sector, sector_count) read-failure record.
type ErrorEntry struct {
	StartSector uint32
	SectorCount uint32
}

type wireError2Header struct {
	EntryCount uint32
	Reserved   [28]byte
	CheckSum   uint32
}

// EncodeError2 serializes the accumulated read-error list into an
// "error2" section payload.
func EncodeError2(entries []ErrorEntry) []byte {
	var buf bytes.Buffer
	hdr := wireError2Header{EntryCount: uint32(len(entries))}
	binary.Write(&buf, binary.LittleEndian, hdr)
	headerChecksum := codec.Checksum(buf.Bytes()[:len(buf.Bytes())-4])
	out := buf.Bytes()
	binary.LittleEndian.PutUint32(out[len(out)-4:], headerChecksum)

	var entryBuf bytes.Buffer
	for _, e := range entries {
		binary.Write(&entryBuf, binary.LittleEndian, e)
	}
	entriesChecksum := codec.Checksum(entryBuf.Bytes())
	var tail [4]byte
	binary.LittleEndian.PutUint32(tail[:], entriesChecksum)

	result := append([]byte{}, out...)
	result = append(result, entryBuf.Bytes()...)
	result = append(result, tail[:]...)
	return result
}

// DecodeError2 parses an "error2" section payload back into its entries.
func DecodeError2(payload []byte) ([]ErrorEntry, error) {
	const headerSize = 4 + 28 + 4
	if len(payload) < headerSize {
		return nil, errkind.New(errkind.Corruption, "section.DecodeError2", fmt.Errorf("payload too short"))
	}
	var hdr wireError2Header
	if err := binary.Read(bytes.NewReader(payload[:headerSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, errkind.New(errkind.Corruption, "section.DecodeError2", err)
	}
	if !codec.Verify(payload[:headerSize-4], hdr.CheckSum) {
		return nil, errkind.New(errkind.Corruption, "section.DecodeError2", fmt.Errorf("header checksum mismatch"))
	}
	entriesBuf := payload[headerSize : len(payload)-4]
	wantChecksum := binary.LittleEndian.Uint32(payload[len(payload)-4:])
	if !codec.Verify(entriesBuf, wantChecksum) {
		return nil, errkind.New(errkind.Corruption, "section.DecodeError2", fmt.Errorf("entries checksum mismatch"))
	}
	entries := make([]ErrorEntry, hdr.EntryCount)
	if err := binary.Read(bytes.NewReader(entriesBuf), binary.LittleEndian, &entries); err != nil {
		return nil, errkind.New(errkind.Corruption, "section.DecodeError2", err)
	}
	return entries, nil
}

// SectorsHeader describes a fixed-size prefix layout for a "sectors"
// section. The writer does not emit it and the reader does not expect it:
// chunk data starts immediately after the 76-byte section header.
type SectorsHeader struct {
	SectorCount uint64
	Reserved    [4]byte
	Padding     [20]byte
	CheckSum    uint32
}
