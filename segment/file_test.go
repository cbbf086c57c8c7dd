package segment

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-forensics/ewfgo/format"
)

func TestWriteReadFileHeaderRoundTrip(t *testing.T) {
	policy, err := format.Lookup(format.EnCase6)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFileHeader(&buf, policy, 1))

	fh, err := ReadFileHeader(bytes.NewReader(buf.Bytes()), policy)
	require.NoError(t, err)
	require.Equal(t, uint16(1), fh.SegmentNumber)
	require.Equal(t, policy.Signature, fh.Signature)
}

func TestReadFileHeaderRejectsWrongSignature(t *testing.T) {
	encasePolicy, err := format.Lookup(format.EnCase6)
	require.NoError(t, err)
	smartPolicy, err := format.Lookup(format.Smart)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFileHeader(&buf, encasePolicy, 1))

	_, err = ReadFileHeader(bytes.NewReader(buf.Bytes()), smartPolicy)
	require.Error(t, err)
}

func TestNameFollowsRolloverScheme(t *testing.T) {
	policy, err := format.Lookup(format.FTK)
	require.NoError(t, err)

	name, err := Name("/cases/image", policy, 1)
	require.NoError(t, err)
	require.Equal(t, "/cases/image.E01", name)

	name, err = Name("/cases/image", policy, 100)
	require.NoError(t, err)
	require.Equal(t, "/cases/image.EAA", name)
}

func TestBudgetFits(t *testing.T) {
	b := NewBudget(1000)
	require.True(t, b.Fits(500, 400))
	require.False(t, b.Fits(500, 600))

	b.Consume(700)
	require.Equal(t, int64(700), b.Written())
	require.False(t, b.Fits(200, 200))
	require.True(t, b.Fits(200, 99))
}
