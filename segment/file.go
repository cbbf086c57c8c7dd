// Package segment implements the segment file envelope and the rollover
// bookkeeping across a segment set (spec §4.3, C3).
package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-forensics/ewfgo/errkind"
	"github.com/go-forensics/ewfgo/format"
)

// FileHeaderSize is the fixed size of the envelope preceding the first
// section of every segment file: an 8-byte signature, a 1-byte start
// marker, the segment number, and a 2-byte trailing reserved field.
const FileHeaderSize = 13

// FileHeader is the fixed envelope at the start of a segment file.
type FileHeader struct {
	Signature     [8]byte
	FieldsStart   uint8
	SegmentNumber uint16
	FieldsEnd     uint16
}

// WriteFileHeader emits the envelope for segmentNumber under policy p.
func WriteFileHeader(w io.Writer, p format.Policy, segmentNumber uint16) error {
	h := FileHeader{Signature: p.Signature, FieldsStart: 1, SegmentNumber: segmentNumber}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return errkind.New(errkind.IO, "segment.WriteFileHeader", err)
	}
	return nil
}

// ReadFileHeader parses the envelope and checks its signature against p.
func ReadFileHeader(r io.Reader, p format.Policy) (FileHeader, error) {
	var h FileHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return FileHeader{}, errkind.New(errkind.IO, "segment.ReadFileHeader", err)
	}
	if !bytes.Equal(h.Signature[:], p.Signature[:]) {
		return FileHeader{}, errkind.New(errkind.Corruption, "segment.ReadFileHeader",
			fmt.Errorf("unexpected segment signature"))
	}
	return h, nil
}

// Name returns the segment file name "<basename>.<ext>" for segmentNumber
// under policy p, per the E01..E99,EAA..ZZZ rollover scheme.
func Name(baseName string, p format.Policy, segmentNumber int) (string, error) {
	ext, err := p.SegmentExtension(segmentNumber)
	if err != nil {
		return "", err
	}
	return baseName + "." + ext, nil
}

// Budget tracks remaining room in the segment currently being written, so
// a writer can decide whether a section (plus its anticipated "table",
// "table2", "next"/"done" trailer) still fits before emitting it, per
// spec §4.3's "size accounting" responsibility.
type Budget struct {
	maxSize  int64
	written  int64
}

// NewBudget returns a Budget for a fresh segment file of the given cap.
func NewBudget(maxSize int64) *Budget {
	return &Budget{maxSize: maxSize}
}

// Consume records n additional bytes as written to the current segment.
func (b *Budget) Consume(n int64) { b.written += n }

// Written reports the current segment's size so far.
func (b *Budget) Written() int64 { return b.written }

// Fits reports whether an additional candidateSize bytes, plus reserve
// bytes held back for the section(s) that must still close the segment
// (its table/table2 trailer and terminating section), would stay within
// the segment's cap.
func (b *Budget) Fits(candidateSize, reserve int64) bool {
	return b.written+candidateSize+reserve <= b.maxSize
}
