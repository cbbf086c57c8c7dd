// Package format holds the static per-variant policy table (spec §4.8,
// C9) that every other package consults instead of branching on the
// variant enum inline.
package format

import "github.com/go-forensics/ewfgo/errkind"

// Variant is a declared EWF dialect.
type Variant int

const (
	FTK Variant = iota
	EnCase2
	EnCase3
	EnCase4
	EnCase5
	EnCase6
	Linen5
	Linen6
	EWFX
	Smart
)

func (v Variant) String() string {
	switch v {
	case FTK:
		return "ftk"
	case EnCase2:
		return "encase2"
	case EnCase3:
		return "encase3"
	case EnCase4:
		return "encase4"
	case EnCase5:
		return "encase5"
	case EnCase6:
		return "encase6"
	case Linen5:
		return "linen5"
	case Linen6:
		return "linen6"
	case EWFX:
		return "ewfx"
	case Smart:
		return "smart"
	default:
		return "unknown"
	}
}

const (
	minSegmentFileSize = 1440 * 1024
	max32BitSegment    = 2*1024*1024*1024 - 1
	max64BitSegment    = (1 << 63) - 1 // EnCase6's 64-bit offset extension, ~7.9 EiB in practice
)

// Policy describes everything a writer or reader must know about one
// variant without inspecting the variant enum again.
type Policy struct {
	Variant Variant

	// Signature is the 8-byte magic at the start of every segment file.
	Signature [8]byte

	// MaxSegmentFileSize is the hard per-segment cap for this variant.
	MaxSegmentFileSize int64

	// HasHeader2, HasXHeader, HasDigest mirror which optional sections
	// this variant's writer emits. HasSession marks variants whose format
	// has a session section; the writer does not emit one.
	HasHeader2 bool
	HasXHeader bool
	HasDigest  bool
	HasSession bool

	// HasGUID reports whether the media descriptor carries a
	// segment-file-set GUID (variants 4 and later).
	HasGUID bool

	// DefaultCompression is the compression level a fresh WriterConfig
	// should assume when the caller doesn't specify one.
	DefaultCompression int // codec.Level, kept as int to avoid an import cycle

	// ChunksPerSection caps how many table entries one (sectors, table,
	// table2) triplet may hold before the writer must start a new one.
	ChunksPerSection uint32

	// HeaderEncoding names the codepage used for the legacy ASCII
	// `header` section ("" means UTF-8/ASCII is sufficient).
	HeaderEncoding string
}

var table = map[Variant]Policy{
	FTK: {
		Variant: FTK, Signature: evfSignature, MaxSegmentFileSize: max32BitSegment,
		HasHeader2: false, ChunksPerSection: 16384, HeaderEncoding: "windows-1252",
	},
	EnCase2: {
		Variant: EnCase2, Signature: evfSignature, MaxSegmentFileSize: max32BitSegment,
		HasHeader2: false, ChunksPerSection: 16384, HeaderEncoding: "windows-1252",
	},
	EnCase3: {
		Variant: EnCase3, Signature: evfSignature, MaxSegmentFileSize: max32BitSegment,
		HasHeader2: false, ChunksPerSection: 16384, HeaderEncoding: "windows-1252",
	},
	EnCase4: {
		Variant: EnCase4, Signature: evfSignature, MaxSegmentFileSize: max32BitSegment,
		HasHeader2: true, HasGUID: true, ChunksPerSection: 16384, HeaderEncoding: "windows-1252",
	},
	EnCase5: {
		Variant: EnCase5, Signature: evfSignature, MaxSegmentFileSize: max32BitSegment,
		HasHeader2: true, HasGUID: true, HasDigest: true, ChunksPerSection: 16384,
		HeaderEncoding: "windows-1252",
	},
	EnCase6: {
		Variant: EnCase6, Signature: evfSignature, MaxSegmentFileSize: max64BitSegment,
		HasHeader2: true, HasGUID: true, HasDigest: true, ChunksPerSection: 16384,
		HeaderEncoding: "windows-1252",
	},
	Linen5: {
		Variant: Linen5, Signature: evfSignature, MaxSegmentFileSize: max32BitSegment,
		HasHeader2: true, HasGUID: true, HasDigest: true, ChunksPerSection: 16384,
		HeaderEncoding: "windows-1252",
	},
	Linen6: {
		Variant: Linen6, Signature: evfSignature, MaxSegmentFileSize: max64BitSegment,
		HasHeader2: true, HasGUID: true, HasDigest: true, ChunksPerSection: 16384,
		HeaderEncoding: "windows-1252",
	},
	EWFX: {
		Variant: EWFX, Signature: evfSignature, MaxSegmentFileSize: max64BitSegment,
		HasHeader2: true, HasXHeader: true, HasGUID: true, HasDigest: true, HasSession: true,
		ChunksPerSection: 16384, HeaderEncoding: "windows-1252",
	},
	Smart: {
		Variant: Smart, Signature: lvfSignature, MaxSegmentFileSize: max32BitSegment,
		HasHeader2: false, HasSession: true, ChunksPerSection: 16384, HeaderEncoding: "windows-1252",
	},
}

var evfSignature = [8]byte{'E', 'V', 'F', 0x09, 0x0d, 0x0a, 0xff, 0x00}
var lvfSignature = [8]byte{'L', 'V', 'F', 0x09, 0x0d, 0x0a, 0xff, 0x00}

// Lookup returns the policy row for v.
func Lookup(v Variant) (Policy, error) {
	p, ok := table[v]
	if !ok {
		return Policy{}, errkind.New(errkind.Unsupported, "format.Lookup", nil)
	}
	return p, nil
}

// ValidateSegmentFileSize checks size against the variant's configured
// minimum and maximum, rejecting violations at configuration time as
// spec §4.3 requires ("Violations of the per-variant cap are rejected at
// configuration time").
func (p Policy) ValidateSegmentFileSize(size int64) error {
	if size < minSegmentFileSize {
		return errkind.New(errkind.InvalidArgument, "format.ValidateSegmentFileSize", nil)
	}
	if size > p.MaxSegmentFileSize {
		return errkind.New(errkind.Unsupported, "format.ValidateSegmentFileSize", nil)
	}
	return nil
}

// ValidateSectorsPerChunk checks n against the power-of-two range
// {64, ..., 32768} the acquisition tools have always exposed.
func ValidateSectorsPerChunk(n uint32) error {
	for v := uint32(64); v <= 32768; v *= 2 {
		if n == v {
			return nil
		}
	}
	return errkind.New(errkind.InvalidArgument, "format.ValidateSectorsPerChunk", nil)
}

// SegmentExtension returns the extension for the Nth segment file (1-based)
// of this variant, following the E01..E99,EAA..ZZZ (or s01..saa.. for
// Smart) naming convention spec §3 describes.
func (p Policy) SegmentExtension(segmentNumber int) (string, error) {
	if segmentNumber < 1 {
		return "", errkind.New(errkind.InvalidArgument, "format.SegmentExtension", nil)
	}

	digitLetter, rangeStart := byte('E'), byte('E')
	lower := p.Variant == Smart
	if lower {
		digitLetter, rangeStart = 's', 's'
	}

	if segmentNumber <= 99 {
		return string([]byte{digitLetter, byte('0' + segmentNumber/10), byte('0' + segmentNumber%10)}), nil
	}

	const alphaRun = 26
	m := segmentNumber - 100
	rangeLen := int('Z'-rangeStart) + 1
	if lower {
		rangeLen = int('z'-rangeStart) + 1
	}
	if m >= rangeLen*alphaRun*alphaRun {
		return "", errkind.New(errkind.Unsupported, "format.SegmentExtension", nil)
	}

	first := rangeStart + byte(m/(alphaRun*alphaRun))
	rem := m % (alphaRun * alphaRun)
	base := byte('A')
	if lower {
		base = 'a'
	}
	second := base + byte(rem/alphaRun)
	third := base + byte(rem%alphaRun)
	return string([]byte{first, second, third}), nil
}
