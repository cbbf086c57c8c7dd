package ewf_test

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-forensics/ewfgo/ewf"
	"github.com/go-forensics/ewfgo/format"
	"github.com/go-forensics/ewfgo/section"
	"github.com/go-forensics/ewfgo/segment"
)

func segmentFiles(t *testing.T, baseName string) []string {
	dir, base := filepath.Split(baseName)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var matches []string
	for _, e := range entries {
		if len(e.Name()) > len(base) && e.Name()[:len(base)] == base {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(matches)
	return matches
}

func TestTinyWriteVerifyMD5(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "image")
	input := make([]byte, 1024)

	w, err := ewf.NewWriter(ewf.WriterConfig{
		Variant:         format.EnCase5,
		OutputBaseName:  base,
		MediaSize:       uint64(len(input)),
		BytesPerSector:  512,
		SectorsPerChunk: 64,
	})
	require.NoError(t, err)

	status, err := w.Acquire(bytes.NewReader(input), nil)
	require.NoError(t, err)
	require.Equal(t, ewf.StatusComplete, status)

	want := md5.Sum(input)
	require.Equal(t, want, w.MD5())

	files := segmentFiles(t, base)
	require.Len(t, files, 1)

	r, err := ewf.Open(ewf.ReaderConfig{SegmentPaths: files})
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, 1, r.ChunkCount())
	require.Equal(t, want, r.MD5())
}

func TestTwoChunkRawRead(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "image")
	input := bytes.Repeat([]byte{0x41}, 65536)

	w, err := ewf.NewWriter(ewf.WriterConfig{
		Variant:         format.EnCase3,
		OutputBaseName:  base,
		MediaSize:       uint64(len(input)),
		BytesPerSector:  512,
		SectorsPerChunk: 64,
	})
	require.NoError(t, err)

	status, err := w.Acquire(bytes.NewReader(input), nil)
	require.NoError(t, err)
	require.Equal(t, ewf.StatusComplete, status)

	r, err := ewf.Open(ewf.ReaderConfig{SegmentPaths: segmentFiles(t, base)})
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, 2, r.ChunkCount())

	buf := make([]byte, 2000)
	n, err := r.ReadAt(buf, 32000)
	require.NoError(t, err)
	require.Equal(t, 2000, n)
	require.Equal(t, bytes.Repeat([]byte{0x41}, 2000), buf)
}

func TestSegmentRollover(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "image")
	input := make([]byte, 4*1024*1024)
	rand.New(rand.NewSource(7)).Read(input)

	w, err := ewf.NewWriter(ewf.WriterConfig{
		Variant:         format.FTK,
		OutputBaseName:  base,
		MediaSize:       uint64(len(input)),
		BytesPerSector:  512,
		SectorsPerChunk: 64,
		SegmentFileSize: 1536 * 1024, // 1.5 MiB
	})
	require.NoError(t, err)

	status, err := w.Acquire(bytes.NewReader(input), nil)
	require.NoError(t, err)
	require.Equal(t, ewf.StatusComplete, status)

	files := segmentFiles(t, base)
	require.GreaterOrEqual(t, len(files), 3)

	for i, path := range files {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		if i < len(files)-1 {
			require.True(t, bytes.Contains(raw, []byte(section.TypeNext)), "segment %d should contain a next section", i)
		} else {
			require.True(t, bytes.Contains(raw, []byte(section.TypeDone)), "last segment should contain a done section")
		}
	}

	r, err := ewf.Open(ewf.ReaderConfig{SegmentPaths: files})
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, input, got)
}

// flakySource fails its first maxFails Read calls, then streams data.
type flakySource struct {
	failCalls int
	maxFails  int
	data      []byte
	pos       int
}

func (f *flakySource) Read(p []byte) (int, error) {
	if f.failCalls < f.maxFails {
		f.failCalls++
		return 0, errors.New("transient read failure")
	}
	if f.pos >= len(f.data) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += n
	return n, nil
}

func TestReadErrorAbsorption(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "image")

	chunkSize := 512 * 64
	input := bytes.Repeat([]byte{0x42}, chunkSize*2)
	src := &flakySource{maxFails: 3, data: input}

	w, err := ewf.NewWriter(ewf.WriterConfig{
		Variant:         format.EnCase5,
		OutputBaseName:  base,
		MediaSize:       uint64(len(input)),
		BytesPerSector:  512,
		SectorsPerChunk: 64,
		ReadErrorRetry:  3,
	})
	require.NoError(t, err)

	status, err := w.Acquire(src, nil)
	require.NoError(t, err)
	require.Equal(t, ewf.StatusPartial, status)

	r, err := ewf.Open(ewf.ReaderConfig{SegmentPaths: segmentFiles(t, base)})
	require.NoError(t, err)
	defer r.Close()

	errs := r.Errors()
	require.Len(t, errs, 1)
	require.Equal(t, uint32(0), errs[0].StartSector)
	require.Equal(t, uint32(64), errs[0].SectorCount)

	// The first chunk's read permanently failed, so it was zero-filled;
	// the second chunk streamed through untouched.
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, make([]byte, chunkSize), got[:chunkSize])
	require.Equal(t, input[chunkSize:], got[chunkSize:])
}

func corruptTableEntriesChecksum(t *testing.T, path string) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	policy, err := format.Lookup(format.EnCase5)
	require.NoError(t, err)
	_, err = segment.ReadFileHeader(f, policy)
	require.NoError(t, err)

	offset := int64(segment.FileHeaderSize)
	for {
		_, err := f.Seek(offset, 0)
		require.NoError(t, err)
		h, err := section.ReadHeader(f)
		require.NoError(t, err)

		if h.TypeString() == section.TypeTable {
			payloadSize := int64(h.Size) - section.HeaderSize
			lastByte := offset + section.HeaderSize + payloadSize - 1
			var b [1]byte
			_, err = f.ReadAt(b[:], lastByte)
			require.NoError(t, err)
			b[0] ^= 0xff
			_, err = f.WriteAt(b[:], lastByte)
			require.NoError(t, err)
			return
		}
		require.NotEqual(t, section.TypeDone, h.TypeString(), "table section not found before done")
		require.NotEqual(t, section.TypeNext, h.TypeString(), "table section not found before next")
		if uint64(offset) == h.NextOffset {
			t.Fatal("table section not found")
		}
		offset = int64(h.NextOffset)
	}
}

func TestCorruptPrimaryTableRecovery(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "image")
	input := make([]byte, 512*64*3)
	rand.New(rand.NewSource(11)).Read(input)

	w, err := ewf.NewWriter(ewf.WriterConfig{
		Variant:         format.EnCase5,
		OutputBaseName:  base,
		MediaSize:       uint64(len(input)),
		BytesPerSector:  512,
		SectorsPerChunk: 64,
	})
	require.NoError(t, err)
	_, err = w.Acquire(bytes.NewReader(input), nil)
	require.NoError(t, err)

	files := segmentFiles(t, base)
	require.Len(t, files, 1)
	corruptTableEntriesChecksum(t, files[0])

	r, err := ewf.Open(ewf.ReaderConfig{SegmentPaths: files})
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, 3, r.ChunkCount())

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, input, got)
}

func TestRoundTripWithSHA1(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "image")
	input := make([]byte, 3*1024*1024)
	rand.New(rand.NewSource(3)).Read(input)

	w, err := ewf.NewWriter(ewf.WriterConfig{
		Variant:         format.EnCase5,
		OutputBaseName:  base,
		MediaSize:       uint64(len(input)),
		BytesPerSector:  512,
		SectorsPerChunk: 64,
		CalculateSHA1:   true,
	})
	require.NoError(t, err)
	_, err = w.Acquire(bytes.NewReader(input), nil)
	require.NoError(t, err)

	r, err := ewf.Open(ewf.ReaderConfig{SegmentPaths: segmentFiles(t, base)})
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, input, got)

	storedSHA1, ok := r.SHA1()
	require.True(t, ok)
	require.Equal(t, sha1.Sum(input), storedSHA1)
}

func TestWriterConfigValidateRejectsBadSectorsPerChunk(t *testing.T) {
	_, err := ewf.NewWriter(ewf.WriterConfig{
		Variant:         format.EnCase5,
		OutputBaseName:  filepath.Join(t.TempDir(), "image"),
		MediaSize:       1024,
		BytesPerSector:  512,
		SectorsPerChunk: 100,
	})
	require.Error(t, err)
}

func TestWriterConfigValidateRejectsSHA1WithoutDigestSupport(t *testing.T) {
	_, err := ewf.NewWriter(ewf.WriterConfig{
		Variant:         format.FTK,
		OutputBaseName:  filepath.Join(t.TempDir(), "image"),
		MediaSize:       1024,
		BytesPerSector:  512,
		SectorsPerChunk: 64,
		CalculateSHA1:   true,
	})
	require.Error(t, err)
}
