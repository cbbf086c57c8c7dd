package section

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-forensics/ewfgo/codec"
	"github.com/go-forensics/ewfgo/errkind"
)

// MediaSize is the fixed size of a volume/disk section payload, per
// spec §6's wire layout.
const MediaSize = 1052

// MediaType values (spec §3).
const (
	MediaRemovable = 0x00
	MediaFixed     = 0x01
	MediaOptical   = 0x03
	MediaLogical   = 0x0e
	MediaRAM       = 0x10
)

// MediaFlag bits (spec §3).
const (
	MediaFlagImage    = 0x01
	MediaFlagPhysical = 0x02
	MediaFlagFastbloc = 0x04
	MediaFlagTableau  = 0x08
)

// Media is the decoded form of a "volume"/"disk" section payload: the
// common prefix spec §6 documents, taken as authoritative for every
// variant (see SPEC_FULL.md §13 on why variant-specific supersets beyond
// this prefix aren't invented).
type Media struct {
	MediaType              uint8
	ChunkCount              uint32
	SectorsPerChunk         uint32
	BytesPerSector          uint32
	SectorCount             uint64
	CHSCylinders            uint32
	CHSHeads                uint32
	CHSSectors              uint32
	MediaFlags              uint8
	PalmVolumeStartSector   uint32
	SmartLogsStartSector    uint32
	CompressionLevel        uint8
	ErrorGranularity        uint32
	GUID                    [16]byte
}

type wireMedia struct {
	MediaType             uint8
	Reserved0             [3]byte
	ChunkCount            uint32
	SectorsPerChunk       uint32
	BytesPerSector        uint32
	SectorCount           uint64
	CHSCylinders          uint32
	CHSHeads              uint32
	CHSSectors            uint32
	MediaFlags            uint8
	Reserved1             [3]byte
	PalmVolumeStartSector uint32
	Reserved2             uint32
	SmartLogsStartSector  uint32
	CompressionLevel      uint8
	Reserved3             [3]byte
	ErrorGranularity      uint32
	Reserved4             uint32
	GUID                  [16]byte
	Reserved5             [963]byte
	Signature             [5]byte
	CheckSum              uint32
}

// EncodeMedia serializes m into a MediaSize-byte payload with its trailing
// Adler-32 computed over everything preceding it.
func EncodeMedia(m Media) ([]byte, error) {
	w := wireMedia{
		MediaType:             m.MediaType,
		ChunkCount:            m.ChunkCount,
		SectorsPerChunk:       m.SectorsPerChunk,
		BytesPerSector:        m.BytesPerSector,
		SectorCount:           m.SectorCount,
		CHSCylinders:          m.CHSCylinders,
		CHSHeads:              m.CHSHeads,
		CHSSectors:            m.CHSSectors,
		MediaFlags:            m.MediaFlags,
		PalmVolumeStartSector: m.PalmVolumeStartSector,
		SmartLogsStartSector:  m.SmartLogsStartSector,
		CompressionLevel:      m.CompressionLevel,
		ErrorGranularity:      m.ErrorGranularity,
		GUID:                  m.GUID,
		Signature:             [5]byte{'E', 'W', 'F', '2', 0},
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, w); err != nil {
		return nil, errkind.New(errkind.IO, "section.EncodeMedia", err)
	}
	payload := buf.Bytes()
	checksum := codec.Checksum(payload[:len(payload)-4])
	binary.LittleEndian.PutUint32(payload[len(payload)-4:], checksum)
	return payload, nil
}

// DecodeMedia parses a MediaSize-byte volume/disk payload, verifying its
// trailing Adler-32.
func DecodeMedia(payload []byte) (Media, error) {
	if len(payload) != MediaSize {
		return Media{}, errkind.New(errkind.Corruption, "section.DecodeMedia",
			fmt.Errorf("want %d bytes, got %d", MediaSize, len(payload)))
	}
	var w wireMedia
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &w); err != nil {
		return Media{}, errkind.New(errkind.Corruption, "section.DecodeMedia", err)
	}
	if !codec.Verify(payload[:len(payload)-4], w.CheckSum) {
		return Media{}, errkind.New(errkind.Corruption, "section.DecodeMedia",
			fmt.Errorf("media section checksum mismatch"))
	}
	return Media{
		MediaType:             w.MediaType,
		ChunkCount:            w.ChunkCount,
		SectorsPerChunk:       w.SectorsPerChunk,
		BytesPerSector:        w.BytesPerSector,
		SectorCount:           w.SectorCount,
		CHSCylinders:          w.CHSCylinders,
		CHSHeads:              w.CHSHeads,
		CHSSectors:            w.CHSSectors,
		MediaFlags:            w.MediaFlags,
		PalmVolumeStartSector: w.PalmVolumeStartSector,
		SmartLogsStartSector:  w.SmartLogsStartSector,
		CompressionLevel:      w.CompressionLevel,
		ErrorGranularity:      w.ErrorGranularity,
		GUID:                  w.GUID,
	}, nil
}
