// Package ioh implements the IO handle (spec §4.5, C5): translating a
// logical byte offset within the image into a chunk number and
// within-chunk offset in O(1).
package ioh

import (
	"fmt"

	"github.com/go-forensics/ewfgo/errkind"
)

// Handle tracks the logical position of an open image and the chunk
// geometry needed to translate it, mirroring the field set libewf's own
// IO handle keeps (SPEC_FULL.md §12).
type Handle struct {
	BytesPerSector  uint32
	SectorsPerChunk uint32
	MediaSize       uint64

	offset uint64 // current logical offset, bytes from start of media
}

// ChunkSize returns the uncompressed size in bytes of one chunk.
func (h *Handle) ChunkSize() uint32 {
	return h.BytesPerSector * h.SectorsPerChunk
}

// ChunkCount returns the total number of chunks spanning MediaSize,
// rounding the final partial chunk up.
func (h *Handle) ChunkCount() uint64 {
	cs := uint64(h.ChunkSize())
	if cs == 0 {
		return 0
	}
	return (h.MediaSize + cs - 1) / cs
}

// Offset returns the current logical offset.
func (h *Handle) Offset() uint64 { return h.offset }

// Seek moves the logical offset, supporting the same whence values as
// io.Seeker (0=start, 1=current, 2=end).
func (h *Handle) Seek(delta int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = int64(h.offset)
	case 2:
		base = int64(h.MediaSize)
	default:
		return 0, errkind.New(errkind.InvalidArgument, "ioh.Seek", fmt.Errorf("invalid whence %d", whence))
	}
	next := base + delta
	if next < 0 || uint64(next) > h.MediaSize {
		return 0, errkind.New(errkind.InvalidArgument, "ioh.Seek", fmt.Errorf("offset %d out of range", next))
	}
	h.offset = uint64(next)
	return next, nil
}

// Locate translates the current logical offset into a chunk number and
// the byte offset within that chunk's decompressed payload.
func (h *Handle) Locate() (chunkNumber uint64, withinChunk uint32, err error) {
	cs := uint64(h.ChunkSize())
	if cs == 0 {
		return 0, 0, errkind.New(errkind.State, "ioh.Locate", fmt.Errorf("zero chunk size"))
	}
	return h.offset / cs, uint32(h.offset % cs), nil
}

// Advance moves the logical offset forward by n bytes, clamped to
// MediaSize, and returns the number of bytes actually advanced.
func (h *Handle) Advance(n uint32) uint32 {
	remaining := h.MediaSize - h.offset
	if uint64(n) > remaining {
		n = uint32(remaining)
	}
	h.offset += uint64(n)
	return n
}

// AtEnd reports whether the handle has reached the end of the media.
func (h *Handle) AtEnd() bool { return h.offset >= h.MediaSize }
