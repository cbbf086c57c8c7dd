package ewf

import (
	"crypto/md5"
	"crypto/sha1"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/go-forensics/ewfgo/chunktable"
	"github.com/go-forensics/ewfgo/codec"
	"github.com/go-forensics/ewfgo/errkind"
	"github.com/go-forensics/ewfgo/format"
	"github.com/go-forensics/ewfgo/header"
	"github.com/go-forensics/ewfgo/section"
	"github.com/go-forensics/ewfgo/segment"
)

// footerReserve is a conservative upper bound on the bytes the fixed-size
// trailing sections of a segment (data, digest, hash, an empty error2,
// done or next) consume, used for the size-accounting projection of spec
// §4.3. writeChunk adds the parts that grow with the segment: the open
// triplet's table/table2 entries and the error2 records. It is generous
// rather than exact: a writer that rolls over one segment early is
// harmless, one that overflows is not.
const footerReserve = section.HeaderSize*6 + section.MediaSize + 256

// Observer receives chunk-boundary progress notifications during
// acquisition (spec §6's typed observer, replacing a raw callback
// pointer).
type Observer interface {
	OnChunk(written, total uint64)
}

type noopObserver struct{}

func (noopObserver) OnChunk(uint64, uint64) {}

// WriterOption configures optional Writer collaborators.
type WriterOption func(*Writer)

// WithLogger injects a structured logger; the default is slog.Default().
func WithLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) { w.log = l }
}

// WithObserver injects a chunk-progress observer.
func WithObserver(o Observer) WriterOption {
	return func(w *Writer) { w.observer = o }
}

// WithClock and WithSystemInfo override the header-default collaborators.
func WithClock(c header.Clock) WriterOption     { return func(w *Writer) { w.clock = c } }
func WithSystemInfo(s header.SystemInfo) WriterOption { return func(w *Writer) { w.sysInfo = s } }

// Writer drives one streaming acquisition (spec §4.6, C7).
type Writer struct {
	mu    sync.Mutex
	state State
	cfg   WriterConfig
	policy format.Policy
	log   *slog.Logger
	observer Observer
	clock    header.Clock
	sysInfo  header.SystemInfo

	guid [16]byte
	hdr  *header.Store

	segmentNumber int
	currentFile   *os.File
	currentPath   string
	budget        *segment.Budget
	lastSectionOffset int64 // absolute offset where the next section begins

	table *chunktable.Table
	// pendingRaw holds base-offset-relative (offset,compressed) entries
	// for the segment currently being written; flushed into table/table2
	// sections at segment close.
	pendingRaw         []uint32
	sectorsHeaderOffset int64 // -1 when no sectors section is open
	sectorsStartOffset  int64

	md5  hash.Hash
	sha1 hash.Hash

	chunkNumber   uint64
	sectorCursor  uint32 // absolute sector index written so far
	errorEntries  []section.ErrorEntry
	cancelled     bool
}

// NewWriter validates cfg and returns a Writer ready for Acquire.
func NewWriter(cfg WriterConfig, opts ...WriterOption) (*Writer, error) {
	policy, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	w := &Writer{
		state:    StateConfiguring,
		cfg:      cfg,
		policy:   policy,
		log:      slog.Default(),
		observer: noopObserver{},
		clock:    systemClock{},
		sysInfo:  runtimeSystemInfo{},
		guid:     NewGUID(),
		hdr:      header.New(),
		table:    chunktable.New(),
		md5:      md5.New(),
	}
	if cfg.CalculateSHA1 {
		w.sha1 = sha1.New()
	}
	for _, opt := range opts {
		opt(w)
	}
	w.populateHeader()
	return w, nil
}

// defaultSoftwareVersion is used to fill header2's "av" field when the
// caller didn't supply one.
const defaultSoftwareVersion = "ewfgo/1.0"

func (w *Writer) populateHeader() {
	softwareVersion := defaultSoftwareVersion
	if f := w.cfg.Header; f != nil {
		w.hdr.Set(header.FieldCaseNumber, f.CaseNumber)
		w.hdr.Set(header.FieldEvidenceNumber, f.EvidenceNumber)
		w.hdr.Set(header.FieldDescription, f.Description)
		w.hdr.Set(header.FieldExaminerName, f.ExaminerName)
		w.hdr.Set(header.FieldNotes, f.Notes)
		if f.SoftwareVersion != "" {
			softwareVersion = f.SoftwareVersion
		}
	}
	w.hdr.ApplyDefaults(w.clock, w.sysInfo, softwareVersion)
}

func (w *Writer) chunkSize() uint32 { return w.cfg.BytesPerSector * w.cfg.SectorsPerChunk }

// segmentSizeCap resolves the configured or variant-default segment size.
func (w *Writer) segmentSizeCap() int64 {
	if w.cfg.SegmentFileSize != 0 {
		return w.cfg.SegmentFileSize
	}
	return w.policy.MaxSegmentFileSize
}

// Acquire streams src in chunk-span units until EOF or cancel is
// signalled, writing segment files as it goes, and returns the final
// status once finalize has run.
func (w *Writer) Acquire(src io.Reader, cancel <-chan struct{}) (Status, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateConfiguring {
		return 0, errkind.New(errkind.State, "Writer.Acquire", fmt.Errorf("writer already started"))
	}
	if err := w.openNextSegment(true); err != nil {
		return 0, err
	}
	w.state = StateWriting

	chunkSize := w.chunkSize()
	total := w.cfg.MediaSize
	buf := make([]byte, chunkSize)

	for uint64(w.chunkNumber)*uint64(chunkSize) < total {
		select {
		case <-cancel:
			w.cancelled = true
		default:
		}
		if w.cancelled {
			break
		}

		want := chunkSize
		if remaining := total - uint64(w.chunkNumber)*uint64(chunkSize); remaining < uint64(chunkSize) {
			want = uint32(remaining)
		}
		n, failed := w.readChunkWithRetry(src, buf[:want])
		if failed {
			w.recordError(n, want)
			w.fillGap(buf[n:want])
		}
		if w.cfg.ByteSwap {
			for i := 0; i+1 < int(want); i += 2 {
				buf[i], buf[i+1] = buf[i+1], buf[i]
			}
		}
		w.md5.Write(buf[:want])
		if w.sha1 != nil {
			w.sha1.Write(buf[:want])
		}
		if err := w.writeChunk(buf[:want]); err != nil {
			return 0, err
		}
		if err := w.observeProgress(total); err != nil {
			return 0, err
		}
	}

	status := StatusComplete
	if w.cancelled {
		status = StatusCancelled
	} else if len(w.errorEntries) > 0 {
		status = StatusPartial
	}
	if err := w.finalize(); err != nil {
		return 0, err
	}
	return status, nil
}

func (w *Writer) observeProgress(total uint64) error {
	w.observer.OnChunk(uint64(w.chunkNumber)*uint64(w.chunkSize()), total)
	return nil
}

// readChunkWithRetry fills buf from src, allowing cfg.ReadErrorRetry read
// errors in all (at least one) before giving up; a permanent failure
// reports failed=true and n is however much was successfully read before
// it.
func (w *Writer) readChunkWithRetry(src io.Reader, buf []byte) (n int, failed bool) {
	attempts := w.cfg.ReadErrorRetry
	if attempts < 1 {
		attempts = 1
	}
	var total int
	for total < len(buf) {
		m, err := src.Read(buf[total:])
		total += m
		if err == nil {
			continue
		}
		if err == io.EOF {
			return total, total < len(buf)
		}
		attempts--
		if attempts <= 0 {
			return total, true
		}
	}
	return total, false
}

// recordError appends an error2 entry covering the unread tail of the
// current chunk, per spec §4.6; fillGap applies the fill pattern.
func (w *Writer) recordError(goodBytes int, wantBytes uint32) {
	granularity := w.cfg.ErrorGranularity
	if granularity == 0 {
		granularity = w.cfg.SectorsPerChunk
	}
	startSector := w.sectorCursor + uint32(goodBytes)/w.cfg.BytesPerSector
	badBytes := wantBytes - uint32(goodBytes)
	sectorCount := badBytes / w.cfg.BytesPerSector
	if sectorCount == 0 && badBytes > 0 {
		sectorCount = 1
	}
	if sectorCount == 0 {
		return
	}
	// Round the failed span out to the configured error granularity
	// boundary, per spec §4.6.
	if rem := startSector % granularity; rem != 0 {
		startSector -= rem
		sectorCount += rem
	}
	if rem := sectorCount % granularity; rem != 0 {
		sectorCount += granularity - rem
	}
	w.errorEntries = append(w.errorEntries, section.ErrorEntry{StartSector: startSector, SectorCount: sectorCount})
	w.log.Warn("read error absorbed", "start_sector", startSector, "sector_count", sectorCount)
}

// fillGap writes the configured error fill pattern (default: zero) over
// the unread tail of a chunk that failed to read in full.
func (w *Writer) fillGap(gap []byte) {
	if len(w.cfg.WipeChunkOnError) == 0 {
		for i := range gap {
			gap[i] = 0
		}
		return
	}
	pattern := w.cfg.WipeChunkOnError
	for i := range gap {
		gap[i] = pattern[i%len(pattern)]
	}
}

// writeChunk compresses (or stores raw), appends the chunk to the
// current segment's sectors section, records its table entry, starts a
// new (sectors, table, table2) triplet once the current one holds the
// policy's ChunksPerSection entries, and rolls to a new segment if the
// projected size would overflow.
func (w *Writer) writeChunk(raw []byte) error {
	stored, compressed, err := w.encodeChunk(raw)
	if err != nil {
		return err
	}

	if w.policy.ChunksPerSection > 0 && uint32(len(w.pendingRaw)) >= w.policy.ChunksPerSection {
		if err := w.closeSectorsTriplet(); err != nil {
			return err
		}
		if err := w.openSectorsSection(); err != nil {
			return err
		}
	}

	// table and table2 each hold a 24-byte frame plus 4 bytes per entry,
	// counting this chunk's; each error2 record takes 8 bytes.
	reserve := footerReserve + 2*int64(section.HeaderSize+24+4*(len(w.pendingRaw)+1)) + 8*int64(len(w.errorEntries))
	if !w.budget.Fits(int64(len(stored)), reserve) {
		if err := w.rollSegment(); err != nil {
			return err
		}
	}

	offsetFromBase := uint32(w.lastSectionOffset - w.sectorsStartOffset)
	if _, err := w.currentFile.Write(stored); err != nil {
		return errkind.New(errkind.IO, "Writer.writeChunk", err)
	}
	w.budget.Consume(int64(len(stored)))
	w.lastSectionOffset += int64(len(stored))

	w.pendingRaw = append(w.pendingRaw, chunktable.EncodeEntry(offsetFromBase, compressed))
	w.chunkNumber++
	w.sectorCursor += uint32(len(raw)) / w.cfg.BytesPerSector
	return nil
}

// encodeChunk returns the on-disk form of one chunk: either a DEFLATE
// stream or raw payload + trailing Adler-32, following the "keep
// compressed only if strictly shorter" rule of spec §4.6.
func (w *Writer) encodeChunk(raw []byte) (stored []byte, compressed bool, err error) {
	if value, ok := codec.IsRepeatedByte(raw); ok {
		block, err := codec.CompressEmptyBlock(value, len(raw))
		if err == nil && len(block) < len(raw)+4 {
			return block, true, nil
		}
	}
	if w.cfg.Compression != codec.LevelNone {
		block, err := codec.Compress(w.cfg.Compression, raw)
		if err != nil {
			return nil, false, err
		}
		if len(block) < len(raw)+4 {
			return block, true, nil
		}
	}
	sum := codec.Checksum(raw)
	out := make([]byte, len(raw)+4)
	copy(out, raw)
	putUint32LE(out[len(raw):], sum)
	return out, false, nil
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
