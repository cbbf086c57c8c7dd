package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 50)

	for _, level := range []Level{LevelNone, LevelFast, LevelBest} {
		compressed, err := Compress(level, src)
		require.NoError(t, err)

		out, err := Decompress(compressed, len(src))
		require.NoError(t, err)
		require.Equal(t, src, out)

		out, err = DecompressStream(bytes.NewReader(compressed), len(src))
		require.NoError(t, err)
		require.Equal(t, src, out)
	}
}

func TestDecompressRejectsOversizedOutput(t *testing.T) {
	src := bytes.Repeat([]byte{0x42}, 4096)
	compressed, err := Compress(LevelBest, src)
	require.NoError(t, err)

	_, err = Decompress(compressed, 10)
	require.Error(t, err)
}

func TestDecompressRejectsGarbage(t *testing.T) {
	_, err := Decompress([]byte{1, 2, 3, 4}, 100)
	require.Error(t, err)
}

func TestIsRepeatedByte(t *testing.T) {
	v, ok := IsRepeatedByte(bytes.Repeat([]byte{0xAB}, 32))
	require.True(t, ok)
	require.Equal(t, byte(0xAB), v)

	_, ok = IsRepeatedByte([]byte{1, 2, 3})
	require.False(t, ok)

	_, ok = IsRepeatedByte(nil)
	require.False(t, ok)
}

func TestCompressEmptyBlockDecodes(t *testing.T) {
	block, err := CompressEmptyBlock(0x00, 8192)
	require.NoError(t, err)

	out, err := Decompress(block, 8192)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0x00}, 8192), out)
}

func TestChecksumVerify(t *testing.T) {
	buf := []byte("some payload bytes")
	sum := Checksum(buf)
	require.True(t, Verify(buf, sum))
	require.False(t, Verify(buf, sum+1))
}
