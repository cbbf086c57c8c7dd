package header

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixedSystemInfo struct{ os string }

func (s fixedSystemInfo) OS() string { return s.os }

func newFilledStore() *Store {
	s := New()
	s.Set(FieldCaseNumber, "case-001")
	s.Set(FieldEvidenceNumber, "ev-01")
	s.Set(FieldDescription, "test acquisition")
	s.Set(FieldExaminerName, "j. doe")
	s.Set(FieldNotes, "nothing unusual")
	return s
}

func TestApplyDefaultsFillsUnsetFields(t *testing.T) {
	s := newFilledStore()
	clock := fixedClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	s.ApplyDefaults(clock, fixedSystemInfo{os: "linux"}, "ewfgo/1.0")

	v, ok := s.Get(FieldAcquiryOS)
	require.True(t, ok)
	require.Equal(t, "linux", v)

	v, ok = s.Get(FieldSoftwareVersion)
	require.True(t, ok)
	require.Equal(t, "ewfgo/1.0", v)

	_, ok = s.Get(FieldAcquiryDate)
	require.True(t, ok)
}

func TestApplyDefaultsDoesNotOverwrite(t *testing.T) {
	s := New()
	s.Set(FieldAcquiryOS, "custom-os")
	s.ApplyDefaults(fixedClock{t: time.Now()}, fixedSystemInfo{os: "linux"}, "v1")

	v, _ := s.Get(FieldAcquiryOS)
	require.Equal(t, "custom-os", v)
}

func TestEncodeDecodeHeaderASCIIRoundTrip(t *testing.T) {
	s := newFilledStore()
	payload, err := s.EncodeHeader("")
	require.NoError(t, err)

	got, err := DecodeHeader(payload, "")
	require.NoError(t, err)

	v, ok := got.Get(FieldCaseNumber)
	require.True(t, ok)
	require.Equal(t, "case-001", v)
	v, ok = got.Get(FieldExaminerName)
	require.True(t, ok)
	require.Equal(t, "j. doe", v)
}

func TestEncodeDecodeHeaderCodepageRoundTrip(t *testing.T) {
	s := New()
	s.Set(FieldDescription, "café au lait")
	payload, err := s.EncodeHeader("windows-1252")
	require.NoError(t, err)

	got, err := DecodeHeader(payload, "windows-1252")
	require.NoError(t, err)
	v, ok := got.Get(FieldDescription)
	require.True(t, ok)
	require.Equal(t, "café au lait", v)
}

func TestEncodeHeaderRejectsUnknownCodepage(t *testing.T) {
	s := New()
	_, err := s.EncodeHeader("shift-jis")
	require.Error(t, err)
}

func TestEncodeDecodeHeader2RoundTrip(t *testing.T) {
	s := newFilledStore()
	payload, err := s.EncodeHeader2()
	require.NoError(t, err)

	// UTF-16LE with BOM: first two bytes are the 0xFF 0xFE BOM marker, not
	// a second literal BOM character re-encoded into the stream.
	require.Equal(t, byte(0xFF), payload[0])
	require.Equal(t, byte(0xFE), payload[1])

	got, err := DecodeHeader2(payload)
	require.NoError(t, err)
	v, ok := got.Get(FieldNotes)
	require.True(t, ok)
	require.Equal(t, "nothing unusual", v)
}

func TestEncodeXHeaderEscapesEntities(t *testing.T) {
	s := New()
	s.Set(FieldDescription, "a <b> & c")
	xml := string(s.EncodeXHeader())
	require.Contains(t, xml, "a &lt;b&gt; &amp; c")
	require.Contains(t, xml, "<xheader>")
}
