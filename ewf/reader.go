package ewf

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/go-forensics/ewfgo/chunktable"
	"github.com/go-forensics/ewfgo/codec"
	"github.com/go-forensics/ewfgo/errkind"
	"github.com/go-forensics/ewfgo/format"
	"github.com/go-forensics/ewfgo/header"
	"github.com/go-forensics/ewfgo/ioh"
	"github.com/go-forensics/ewfgo/section"
	"github.com/go-forensics/ewfgo/segment"
)

// DefaultChunkCacheCapacity bounds the reader's LRU of decoded chunk
// payloads (spec §5's "per-handle chunk cache").
const DefaultChunkCacheCapacity = 256

// ReaderOption configures optional Reader collaborators.
type ReaderOption func(*Reader)

// WithReaderLogger injects a structured logger for a Reader.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) { r.log = l }
}

// Reader provides random-access reads over an already-acquired segment
// set (spec §4.5/§4.6, C5+C6).
type Reader struct {
	cfg    ReaderConfig
	policy format.Policy
	log    *slog.Logger

	pool       *segment.Pool
	paths      map[uint16]string
	table      *chunktable.Table
	handle     *ioh.Handle
	media      section.Media
	hdr        *header.Store
	md5        [16]byte
	sha1       [20]byte
	hasSHA1    bool
	errors     []section.ErrorEntry
	chunkCache *lru.Cache[uint64, []byte]
}

// Open parses every segment file named in cfg, in order, rebuilding the
// chunk table and header metadata, per the read-path data flow of §2.
func Open(cfg ReaderConfig, opts ...ReaderOption) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fdCapacity := cfg.OpenFDCapacity
	pool, err := segment.NewPool(fdCapacity)
	if err != nil {
		return nil, err
	}
	cacheCapacity := cfg.ChunkCacheCapacity
	if cacheCapacity <= 0 {
		cacheCapacity = DefaultChunkCacheCapacity
	}
	cache, err := lru.New[uint64, []byte](cacheCapacity)
	if err != nil {
		return nil, errkind.New(errkind.Resource, "ewf.Open", err)
	}

	r := &Reader{
		cfg:        cfg,
		log:        slog.Default(),
		pool:       pool,
		paths:      make(map[uint16]string),
		table:      chunktable.New(),
		hdr:        header.New(),
		chunkCache: cache,
	}
	for _, opt := range opts {
		opt(r)
	}

	policy, err := detectPolicy(cfg.SegmentPaths[0])
	if err != nil {
		return nil, err
	}
	r.policy = policy

	for _, path := range cfg.SegmentPaths {
		if err := r.ingestSegment(path); err != nil {
			return nil, err
		}
	}

	chunkSize := r.media.BytesPerSector * r.media.SectorsPerChunk
	r.handle = &ioh.Handle{
		BytesPerSector:  r.media.BytesPerSector,
		SectorsPerChunk: r.media.SectorsPerChunk,
		MediaSize:       r.media.SectorCount * uint64(r.media.BytesPerSector),
	}
	if chunkSize == 0 {
		return nil, errkind.New(errkind.Corruption, "ewf.Open", fmt.Errorf("media descriptor missing chunk geometry"))
	}
	return r, nil
}

// detectPolicy reads the first segment's 8-byte signature and matches it
// against every variant's policy row.
func detectPolicy(path string) (format.Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return format.Policy{}, errkind.New(errkind.IO, "ewf.detectPolicy", err)
	}
	defer f.Close()

	var sig [8]byte
	if _, err := io.ReadFull(f, sig[:]); err != nil {
		return format.Policy{}, errkind.New(errkind.Corruption, "ewf.detectPolicy", err)
	}
	for _, v := range []format.Variant{
		format.FTK, format.EnCase2, format.EnCase3, format.EnCase4, format.EnCase5,
		format.EnCase6, format.Linen5, format.Linen6, format.EWFX, format.Smart,
	} {
		p, _ := format.Lookup(v)
		if bytes.Equal(p.Signature[:], sig[:]) {
			return p, nil
		}
	}
	return format.Policy{}, errkind.New(errkind.Unsupported, "ewf.detectPolicy", fmt.Errorf("unrecognized segment signature"))
}

// ingestSegment walks one segment file's section chain, decoding the
// sections this engine understands and recording chunk-table entries.
func (r *Reader) ingestSegment(path string) error {
	f, err := r.pool.Open(path)
	if err != nil {
		return err
	}

	fh, err := segment.ReadFileHeader(f, r.policy)
	if err != nil {
		return err
	}
	r.paths[fh.SegmentNumber] = path

	offset := int64(segment.FileHeaderSize)
	for {
		if _, err := f.Seek(offset, 0); err != nil {
			return errkind.New(errkind.IO, "ewf.ingestSegment", err)
		}
		h, err := section.ReadHeader(f)
		if err != nil {
			return err
		}
		payloadSize := int64(h.Size) - section.HeaderSize
		typeStr := h.TypeString()

		switch typeStr {
		case section.TypeHeader:
			payload := make([]byte, payloadSize)
			if _, err := io.ReadFull(f, payload); err != nil {
				return errkind.New(errkind.IO, "ewf.ingestSegment", err)
			}
			plain, err := codec.Decompress(payload, 1<<20)
			if err == nil {
				if store, derr := header.DecodeHeader(plain, r.policy.HeaderEncoding); derr == nil {
					r.mergeHeader(store)
				}
			}
		case section.TypeHeader2:
			payload := make([]byte, payloadSize)
			if _, err := io.ReadFull(f, payload); err != nil {
				return errkind.New(errkind.IO, "ewf.ingestSegment", err)
			}
			plain, err := codec.Decompress(payload, 1<<20)
			if err == nil {
				if store, derr := header.DecodeHeader2(plain); derr == nil {
					r.mergeHeader(store)
				}
			}
		case section.TypeVolume, section.TypeDisk, section.TypeData:
			payload := make([]byte, payloadSize)
			if _, err := io.ReadFull(f, payload); err != nil {
				return errkind.New(errkind.IO, "ewf.ingestSegment", err)
			}
			m, err := section.DecodeMedia(payload)
			if err == nil {
				r.media = m
			}
		case section.TypeTable:
			if err := r.ingestTable(f, offset, h, fh.SegmentNumber); err != nil {
				return err
			}
		case section.TypeDigest:
			payload := make([]byte, payloadSize)
			if _, err := io.ReadFull(f, payload); err == nil {
				if d, derr := section.DecodeDigest(payload); derr == nil {
					r.sha1 = d.SHA1
					r.hasSHA1 = true
				}
			}
		case section.TypeHash:
			payload := make([]byte, payloadSize)
			if _, err := io.ReadFull(f, payload); err == nil {
				if hv, herr := section.DecodeHash(payload); herr == nil {
					r.md5 = hv.MD5
				}
			}
		case section.TypeError2:
			payload := make([]byte, payloadSize)
			if _, err := io.ReadFull(f, payload); err == nil {
				if entries, eerr := section.DecodeError2(payload); eerr == nil {
					r.errors = append(r.errors, entries...)
				}
			}
		case section.TypeDone, section.TypeNext:
			return nil
		}

		if uint64(offset) == h.NextOffset {
			return nil // self-referencing terminator encountered directly
		}
		offset = int64(h.NextOffset)
	}
}

func (r *Reader) mergeHeader(store *header.Store) {
	for _, field := range []string{
		header.FieldCaseNumber, header.FieldEvidenceNumber, header.FieldDescription,
		header.FieldExaminerName, header.FieldNotes, header.FieldAcquiryDate,
		header.FieldSystemDate, header.FieldAcquiryOS, header.FieldSoftwareVersion,
	} {
		if v, ok := store.Get(field); ok {
			if _, already := r.hdr.Get(field); !already {
				r.hdr.Set(field, v)
			}
		}
	}
}

// ingestTable decodes a table section at the file's current position
// (just past the section header) and falls back to table2 on checksum
// failure. If table2 fails as well, the error is returned; the sectors
// payload is not scanned forward to rebuild the table.
func (r *Reader) ingestTable(f *os.File, sectionOffset int64, h section.Header, segmentID uint16) error {
	payloadSize := int64(h.Size) - section.HeaderSize
	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(f, payload); err != nil {
		return errkind.New(errkind.IO, "ewf.ingestTable", err)
	}

	body, err := chunktable.Decode(payload)
	if err != nil {
		r.log.Warn("primary table checksum failed, trying table2", "segment", segmentID)
		body, err = r.ingestTable2(f, sectionOffset, h)
		if err != nil {
			return err
		}
	}

	fi, statErr := f.Stat()
	var segmentSize int64
	if statErr == nil {
		segmentSize = fi.Size()
	}
	// The sectors payload ends where this table section begins, so the
	// last entry runs from its own offset up to that point.
	var lastEntryLength uint32
	if n := len(body.Raw); n > 0 {
		lastOffset, _ := chunktable.DecodeEntry(body.Raw[n-1])
		lastEntryLength = uint32(sectionOffset-int64(body.BaseOffset)) - lastOffset
	}
	entries, err := chunktable.ResolveStoredLengths(segmentID, body, lastEntryLength, segmentSize)
	if err != nil {
		return err
	}
	for _, e := range entries {
		r.table.Append(e)
	}
	return nil
}

// ingestTable2 reads the table2 section that immediately follows a failed
// table section (table's next_offset points at it) and decodes it;
// callers treat a second failure as fully corrupt metadata for this
// segment. The reader has no forward rescan of the sectors payload.
func (r *Reader) ingestTable2(f *os.File, _ int64, h section.Header) (chunktable.SectionBody, error) {
	if _, err := f.Seek(int64(h.NextOffset), 0); err != nil {
		return chunktable.SectionBody{}, errkind.New(errkind.IO, "ewf.ingestTable2", err)
	}
	h2, err := section.ReadHeader(f)
	if err != nil {
		return chunktable.SectionBody{}, err
	}
	if h2.TypeString() != section.TypeTable2 {
		return chunktable.SectionBody{}, errkind.New(errkind.Corruption, "ewf.ingestTable2", fmt.Errorf("expected table2, found %q", h2.TypeString()))
	}
	payload := make([]byte, int64(h2.Size)-section.HeaderSize)
	if _, err := io.ReadFull(f, payload); err != nil {
		return chunktable.SectionBody{}, errkind.New(errkind.IO, "ewf.ingestTable2", err)
	}
	return chunktable.Decode(payload)
}

// Media returns the decoded volume/disk descriptor.
func (r *Reader) Media() section.Media { return r.media }

// Header returns the merged header value store.
func (r *Reader) Header() *header.Store { return r.hdr }

// MD5 and SHA1 return the recorded hashes; SHA1's second value reports
// whether a digest section was present.
func (r *Reader) MD5() [16]byte             { return r.md5 }
func (r *Reader) SHA1() ([20]byte, bool)    { return r.sha1, r.hasSHA1 }
func (r *Reader) Errors() []section.ErrorEntry { return r.errors }

// ChunkCount reports how many chunks the chunk table currently indexes.
func (r *Reader) ChunkCount() int { return r.table.Len() }

// Close releases every open segment handle.
func (r *Reader) Close() error { return r.pool.Close() }
