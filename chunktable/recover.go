package chunktable

import (
	"bufio"
	"io"

	"github.com/go-forensics/ewfgo/codec"
	"github.com/go-forensics/ewfgo/errkind"
)

// countingReader tracks exactly how many bytes have been pulled from the
// underlying reader, so a chunk decoder's consumption can be measured
// even when it reads in variable-sized bursts.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// RecoverFromStream reconstructs chunk offsets by scanning forward
// through a "sectors" section's raw payload byte stream, used when both
// table and table2 fail their checksum (spec §4.4's reconstruction
// fallback). It stops as soon as it has recovered chunkCount entries.
//
// Compressed chunks are measured with a 1-byte-buffered reader beneath
// the DEFLATE decoder so the decoder's own read-ahead never consumes
// bytes belonging to the next chunk; this makes the scan exact at the
// cost of being far slower than the table-driven path, which is
// acceptable since it only runs once metadata is already known corrupt.
func RecoverFromStream(r io.Reader, chunkSize uint32, chunkCount int) ([]uint32, error) {
	raw := make([]uint32, 0, chunkCount)
	var offset uint32

	for len(raw) < chunkCount {
		start := offset
		cr := &countingReader{r: r}

		rawBuf := make([]byte, chunkSize+4)
		n, err := io.ReadFull(cr, rawBuf)
		if err == nil && codec.Verify(rawBuf[:chunkSize], leUint32(rawBuf[chunkSize:])) {
			raw = append(raw, EncodeEntry(start, false))
			offset = start + uint32(cr.n)
			continue
		}

		// Not a valid raw+checksum chunk; re-attempt as compressed,
		// re-reading from the same logical start via a fresh 1-byte
		// buffered view so DEFLATE can't borrow from rawBuf's read-ahead.
		chunkReader := io.MultiReader(&discardReader{consumed: n, buf: rawBuf}, r)
		bcr := &countingReader{r: bufio.NewReaderSize(chunkReader, 1)}
		decompressed, decErr := codec.DecompressStream(bcr, int(chunkSize))
		if decErr != nil || len(decompressed) == 0 {
			return nil, errkind.New(errkind.Corruption, "chunktable.RecoverFromStream", nil)
		}
		raw = append(raw, EncodeEntry(start, true))
		offset = start + uint32(bcr.n)
	}
	return raw, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// discardReader replays bytes already buffered by a failed raw-chunk
// attempt, so the compressed re-attempt sees the same byte stream from
// its logical start.
type discardReader struct {
	consumed int
	buf      []byte
	pos      int
}

func (d *discardReader) Read(p []byte) (int, error) {
	if d.pos >= d.consumed {
		return 0, io.EOF
	}
	n := copy(p, d.buf[d.pos:d.consumed])
	d.pos += n
	return n, nil
}
