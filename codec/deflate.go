package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/go-forensics/ewfgo/errkind"
)

// Level selects a compression policy for chunk payloads, matching the
// three settings ewfacquirestream exposes (-c none|fast|best) plus the
// empty-block special case.
type Level int

const (
	LevelNone Level = iota
	LevelFast
	LevelBest
)

func (l Level) zlibLevel() int {
	switch l {
	case LevelFast:
		return zlib.BestSpeed
	case LevelBest:
		return zlib.BestCompression
	default:
		return zlib.NoCompression
	}
}

// Compress DEFLATEs src at the given level, wrapped in the RFC 1950
// zlib header/trailer the format expects for compressed chunk payloads
// and header/header2 sections.
func Compress(level Level, src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level.zlibLevel())
	if err != nil {
		return nil, errkind.New(errkind.InvalidArgument, "codec.Compress", err)
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, errkind.New(errkind.IO, "codec.Compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, errkind.New(errkind.IO, "codec.Compress", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a zlib stream, refusing to expand past maxOut bytes
// so a corrupt or hostile compressed chunk cannot exhaust memory.
func Decompress(src []byte, maxOut int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, errkind.New(errkind.Corruption, "codec.Decompress", err)
	}
	defer r.Close()

	limited := io.LimitReader(r, int64(maxOut)+1)
	out, err := io.ReadAll(limited)
	if err != nil {
		return nil, errkind.New(errkind.Corruption, "codec.Decompress", err)
	}
	if len(out) > maxOut {
		return nil, errkind.New(errkind.Corruption, "codec.Decompress", io.ErrShortBuffer)
	}
	return out, nil
}

// DecompressStream inflates a zlib stream read directly from r, for
// callers that don't yet know the compressed length (the chunk-table
// recovery scan). It refuses to expand past maxOut bytes.
func DecompressStream(r io.Reader, maxOut int) ([]byte, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, errkind.New(errkind.Corruption, "codec.DecompressStream", err)
	}
	defer zr.Close()

	limited := io.LimitReader(zr, int64(maxOut)+1)
	out, err := io.ReadAll(limited)
	if err != nil {
		return nil, errkind.New(errkind.Corruption, "codec.DecompressStream", err)
	}
	if len(out) > maxOut {
		return nil, errkind.New(errkind.Corruption, "codec.DecompressStream", io.ErrShortBuffer)
	}
	return out, nil
}

// IsRepeatedByte reports whether buf consists of a single byte value
// repeated for its entire length, the trigger for empty-block mode (§4.1).
func IsRepeatedByte(buf []byte) (value byte, ok bool) {
	if len(buf) == 0 {
		return 0, false
	}
	value = buf[0]
	for _, b := range buf[1:] {
		if b != value {
			return 0, false
		}
	}
	return value, true
}

// CompressEmptyBlock produces the canonical compressed form for a chunk
// that is a single repeated byte. The writer applies it to every
// repeated-byte chunk, even when its global level is LevelNone; there is
// no setting that turns it off. Decoders must
// accept this form unconditionally, so it is just an ordinary zlib stream
// at best-compression — DEFLATE already reduces a repeated-byte run to a
// few bytes regardless of level, but best keeps the on-disk form stable.
func CompressEmptyBlock(value byte, length int) ([]byte, error) {
	return Compress(LevelBest, bytes.Repeat([]byte{value}, length))
}
