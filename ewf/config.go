package ewf

import (
	"fmt"

	"github.com/go-forensics/ewfgo/codec"
	"github.com/go-forensics/ewfgo/errkind"
	"github.com/go-forensics/ewfgo/format"
)

// WriterConfig configures a new acquisition (spec §4.6, §12). It is
// validated in full against the variant's format.Policy at construction
// time, mirroring the acquisition tool's own flag validation pass rather
// than failing midstream.
type WriterConfig struct {
	Variant         format.Variant
	OutputBaseName  string // path without segment extension, e.g. "/cases/1001/image"
	MediaSize       uint64
	BytesPerSector  uint32
	SectorsPerChunk uint32
	SegmentFileSize int64 // 0 selects the variant's maximum
	Compression     codec.Level
	CalculateSHA1   bool

	// ByteSwap corrects endianness of the source in place before
	// compression, for media captured on a big-endian source.
	ByteSwap bool

	// WipeChunkOnError selects the replacement pattern written in place
	// of a chunk the source failed to deliver after retries; nil selects
	// the default zero-fill.
	WipeChunkOnError []byte

	// ReadErrorRetry is how many read attempts a chunk gets (values below
	// 1 count as 1) before the unread span is recorded in error2.
	ReadErrorRetry int

	// ErrorGranularity is the sector count used when recording read
	// failures into error2; it must evenly divide SectorsPerChunk.
	ErrorGranularity uint32

	Header *HeaderFields
}

// HeaderFields carries the case metadata that fills the header/header2
// sections (spec §4.7's well-known fields).
type HeaderFields struct {
	CaseNumber      string
	EvidenceNumber  string
	Description     string
	ExaminerName    string
	Notes           string
	SoftwareVersion string
}

// Validate checks cfg against cfg.Variant's policy row, returning the
// resolved policy for convenience.
func (cfg WriterConfig) Validate() (format.Policy, error) {
	policy, err := format.Lookup(cfg.Variant)
	if err != nil {
		return format.Policy{}, err
	}
	if cfg.OutputBaseName == "" {
		return format.Policy{}, errkind.New(errkind.InvalidArgument, "WriterConfig.Validate", fmt.Errorf("output base name is required"))
	}
	if cfg.MediaSize == 0 {
		return format.Policy{}, errkind.New(errkind.InvalidArgument, "WriterConfig.Validate", fmt.Errorf("media size must be positive"))
	}
	if cfg.BytesPerSector == 0 {
		return format.Policy{}, errkind.New(errkind.InvalidArgument, "WriterConfig.Validate", fmt.Errorf("bytes per sector must be positive"))
	}
	if err := format.ValidateSectorsPerChunk(cfg.SectorsPerChunk); err != nil {
		return format.Policy{}, err
	}
	segSize := cfg.SegmentFileSize
	if segSize == 0 {
		segSize = policy.MaxSegmentFileSize
	}
	if err := policy.ValidateSegmentFileSize(segSize); err != nil {
		return format.Policy{}, err
	}
	if cfg.ErrorGranularity != 0 && cfg.SectorsPerChunk%cfg.ErrorGranularity != 0 {
		return format.Policy{}, errkind.New(errkind.InvalidArgument, "WriterConfig.Validate",
			fmt.Errorf("error granularity %d does not divide sectors per chunk %d", cfg.ErrorGranularity, cfg.SectorsPerChunk))
	}
	if cfg.CalculateSHA1 && !policy.HasDigest {
		return format.Policy{}, errkind.New(errkind.Unsupported, "WriterConfig.Validate",
			fmt.Errorf("variant %s does not support a digest section", cfg.Variant))
	}
	return policy, nil
}

// ReaderConfig configures opening an existing segment-file set.
type ReaderConfig struct {
	// SegmentPaths lists every segment file belonging to the set, in
	// ascending segment-number order. Opening scans them starting at
	// segment 1.
	SegmentPaths []string

	// OpenFDCapacity bounds the reader's LRU of open segment handles;
	// <= 0 selects segment.DefaultOpenFDCapacity.
	OpenFDCapacity int

	// ChunkCacheCapacity bounds the reader's LRU of decoded chunks;
	// <= 0 selects DefaultChunkCacheCapacity.
	ChunkCacheCapacity int
}

func (cfg ReaderConfig) Validate() error {
	if len(cfg.SegmentPaths) == 0 {
		return errkind.New(errkind.InvalidArgument, "ReaderConfig.Validate", fmt.Errorf("at least one segment path is required"))
	}
	return nil
}
