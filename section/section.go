// Package section implements the EWF section codec (spec §4.2, C2): the
// fixed 76-byte section header every segment-file record shares, and the
// typed payload structs for the sections this engine understands.
package section

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-forensics/ewfgo/codec"
	"github.com/go-forensics/ewfgo/errkind"
)

// HeaderSize is the fixed size of a section record's header, before its
// payload: 16 (type) + 8 (next offset) + 8 (size) + 40 (padding) + 4
// (checksum) = 76 bytes, matching spec §6's wire layout.
const HeaderSize = 76

// Known section type tags.
const (
	TypeHeader  = "header"
	TypeHeader2 = "header2"
	TypeXHeader = "xheader"
	TypeVolume  = "volume"
	TypeDisk    = "disk"
	TypeData    = "data"
	TypeSectors = "sectors"
	TypeTable   = "table"
	TypeTable2  = "table2"
	TypeNext    = "next"
	TypeDigest  = "digest"
	TypeHash    = "hash"
	TypeError2  = "error2"
	TypeSession = "session"
	TypeDone    = "done"
)

// Header is the 76-byte fixed section record header that precedes every
// section's payload.
type Header struct {
	Type       [16]byte
	NextOffset uint64
	Size       uint64
	_          [40]byte
	CheckSum   uint32
}

// TypeString returns the NUL-trimmed ASCII section type.
func (h Header) TypeString() string {
	return string(bytes.TrimRight(h.Type[:], "\x00"))
}

func typeTag(sectionType string) ([16]byte, error) {
	var tag [16]byte
	if len(sectionType) > len(tag) {
		return tag, errkind.New(errkind.InvalidArgument, "section.typeTag", nil)
	}
	copy(tag[:], sectionType)
	return tag, nil
}

// fixedHeaderBytes returns the first 72 bytes of the header (everything
// but the trailing checksum), the span the checksum itself covers.
func fixedHeaderBytes(h Header) []byte {
	buf := make([]byte, HeaderSize-4)
	w := bytes.NewBuffer(buf[:0])
	binary.Write(w, binary.LittleEndian, h.Type)
	binary.Write(w, binary.LittleEndian, h.NextOffset)
	binary.Write(w, binary.LittleEndian, h.Size)
	var pad [40]byte
	binary.Write(w, binary.LittleEndian, pad)
	return w.Bytes()
}

// ReadHeader parses a section header at the current position of r.
// Unknown section types are accepted here (callers skip to NextOffset
// rather than requiring a known payload decoder), preserving forward
// compatibility per spec §4.2.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Header{}, errkind.New(errkind.IO, "section.ReadHeader", err)
	}
	want := codec.Checksum(fixedHeaderBytes(h))
	if h.CheckSum != 0 && h.CheckSum != want {
		return Header{}, errkind.New(errkind.Corruption, "section.ReadHeader",
			fmt.Errorf("header checksum mismatch for %q", h.TypeString()))
	}
	return h, nil
}

// WriteHeader serializes a section header for sectionType whose payload is
// payloadSize bytes long, to be written immediately afterward, with
// nextOffset the absolute file offset of the following section (or the
// terminating sentinel for "done"/"next" closing sections).
func WriteHeader(w io.Writer, sectionType string, payloadSize uint64, nextOffset uint64) error {
	tag, err := typeTag(sectionType)
	if err != nil {
		return err
	}
	h := Header{Type: tag, NextOffset: nextOffset, Size: HeaderSize + payloadSize}
	h.CheckSum = codec.Checksum(fixedHeaderBytes(h))
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return errkind.New(errkind.IO, "section.WriteHeader", err)
	}
	return nil
}

// Write emits a complete section (header + payload) and returns the total
// number of bytes written.
func Write(w io.Writer, sectionType string, payload []byte, nextOffset uint64) (int64, error) {
	if err := WriteHeader(w, sectionType, uint64(len(payload)), nextOffset); err != nil {
		return 0, err
	}
	n, err := w.Write(payload)
	if err != nil {
		return HeaderSize, errkind.New(errkind.IO, "section.Write", err)
	}
	return HeaderSize + int64(n), nil
}
