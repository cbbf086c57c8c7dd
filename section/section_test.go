package section

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, TypeVolume, 1052, 1200))

	h, err := ReadHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, TypeVolume, h.TypeString())
	require.Equal(t, uint64(1200), h.NextOffset)
	require.Equal(t, uint64(HeaderSize+1052), h.Size)
}

func TestReadHeaderDetectsChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, TypeTable, 64, 500))

	corrupt := buf.Bytes()
	corrupt[0] ^= 0xff // flip a byte within the covered type tag

	_, err := ReadHeader(bytes.NewReader(corrupt))
	require.Error(t, err)
}

func TestWriteRejectsOverlongType(t *testing.T) {
	_, err := Write(&bytes.Buffer{}, "this-type-name-is-far-too-long", nil, 0)
	require.Error(t, err)
}

func TestWriteThenReadFullSection(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello section payload")
	n, err := Write(&buf, TypeHeader, payload, 9999)
	require.NoError(t, err)
	require.Equal(t, int64(HeaderSize+len(payload)), n)

	r := bytes.NewReader(buf.Bytes())
	h, err := ReadHeader(r)
	require.NoError(t, err)
	require.Equal(t, TypeHeader, h.TypeString())

	got := make([]byte, int(h.Size)-HeaderSize)
	_, err = r.Read(got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestMediaEncodeDecodeRoundTrip(t *testing.T) {
	m := Media{
		MediaType:        MediaFixed,
		ChunkCount:       42,
		SectorsPerChunk:  64,
		BytesPerSector:   512,
		SectorCount:      1 << 20,
		MediaFlags:       MediaFlagImage,
		CompressionLevel: 1,
		ErrorGranularity: 64,
		GUID:             [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
	}
	payload, err := EncodeMedia(m)
	require.NoError(t, err)
	require.Len(t, payload, MediaSize)

	got, err := DecodeMedia(payload)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestMediaDecodeRejectsBadChecksum(t *testing.T) {
	m := Media{MediaType: MediaFixed, ChunkCount: 1, SectorsPerChunk: 64, BytesPerSector: 512, SectorCount: 64}
	payload, err := EncodeMedia(m)
	require.NoError(t, err)

	payload[10] ^= 0xff
	_, err = DecodeMedia(payload)
	require.Error(t, err)
}

func TestMediaDecodeRejectsWrongLength(t *testing.T) {
	_, err := DecodeMedia([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDigestAndHashEncodeDecode(t *testing.T) {
	d := Digest{MD5: [16]byte{1}, SHA1: [20]byte{2}}
	payload := EncodeDigest(d)
	got, err := DecodeDigest(payload)
	require.NoError(t, err)
	require.Equal(t, d, got)

	h := Hash{MD5: [16]byte{3}, SHA1: [20]byte{4}}
	hPayload := EncodeHash(h)
	gotH, err := DecodeHash(hPayload)
	require.NoError(t, err)
	require.Equal(t, h, gotH)
}

func TestError2EncodeDecode(t *testing.T) {
	entries := []ErrorEntry{{StartSector: 8, SectorCount: 1}, {StartSector: 100, SectorCount: 64}}
	payload := EncodeError2(entries)

	got, err := DecodeError2(payload)
	require.NoError(t, err)
	require.Equal(t, entries, got)
}

func TestError2DecodeRejectsShortPayload(t *testing.T) {
	_, err := DecodeError2([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestError2DecodeRejectsBadEntriesChecksum(t *testing.T) {
	entries := []ErrorEntry{{StartSector: 8, SectorCount: 1}}
	payload := EncodeError2(entries)
	payload[len(payload)-5] ^= 0xff

	_, err := DecodeError2(payload)
	require.Error(t, err)
}

func TestFixedHeaderBytesCoversPaddingNotChecksum(t *testing.T) {
	h := Header{NextOffset: 10, Size: 86}
	copy(h.Type[:], TypeDone)
	fixed := fixedHeaderBytes(h)
	require.Len(t, fixed, HeaderSize-4)
	require.Equal(t, uint64(10), binary.LittleEndian.Uint64(fixed[16:24]))
}
