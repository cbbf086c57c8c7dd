package ewf

import (
	"os"

	"github.com/go-forensics/ewfgo/chunktable"
	"github.com/go-forensics/ewfgo/codec"
	"github.com/go-forensics/ewfgo/errkind"
	"github.com/go-forensics/ewfgo/format"
	"github.com/go-forensics/ewfgo/section"
	"github.com/go-forensics/ewfgo/segment"
)

// appendSection writes a fully-materialized section (every section but
// "sectors", whose payload length isn't known until the triplet closes)
// and advances the writer's position bookkeeping.
func (w *Writer) appendSection(sectionType string, payload []byte) error {
	nextOffset := w.lastSectionOffset + section.HeaderSize + int64(len(payload))
	n, err := section.Write(w.currentFile, sectionType, payload, uint64(nextOffset))
	if err != nil {
		return err
	}
	w.budget.Consume(n)
	w.lastSectionOffset += n
	return nil
}

// appendTerminator writes a zero-payload section (done/next) whose
// next_offset points back at itself, the convention this format's
// terminating sections use.
func (w *Writer) appendTerminator(sectionType string) error {
	offset := w.lastSectionOffset
	n, err := section.Write(w.currentFile, sectionType, nil, uint64(offset))
	if err != nil {
		return err
	}
	w.budget.Consume(n)
	w.lastSectionOffset += n
	return nil
}

func (w *Writer) mediaDescriptor() section.Media {
	chunkSize := uint64(w.chunkSize())
	chunkCount := uint32((w.cfg.MediaSize + chunkSize - 1) / chunkSize)
	var guid [16]byte
	if w.policy.HasGUID {
		guid = w.guid
	}
	return section.Media{
		MediaType:        section.MediaFixed,
		ChunkCount:       chunkCount,
		SectorsPerChunk:  w.cfg.SectorsPerChunk,
		BytesPerSector:   w.cfg.BytesPerSector,
		SectorCount:      w.cfg.MediaSize / uint64(w.cfg.BytesPerSector),
		MediaFlags:       section.MediaFlagImage,
		CompressionLevel: uint8(w.cfg.Compression),
		ErrorGranularity: w.cfg.ErrorGranularity,
		GUID:             guid,
	}
}

// writeOpeningMetadata emits the segment-1-only header2/header/volume
// sections, per spec §4.3's canonical ordering.
func (w *Writer) writeOpeningMetadata() error {
	if w.policy.HasHeader2 {
		plain, err := w.hdr.EncodeHeader2()
		if err != nil {
			return err
		}
		compressed, err := codec.Compress(codec.LevelBest, plain)
		if err != nil {
			return err
		}
		if err := w.appendSection(section.TypeHeader2, compressed); err != nil {
			return err
		}
	}
	headerPlain, err := w.hdr.EncodeHeader(w.policy.HeaderEncoding)
	if err != nil {
		return err
	}
	headerCompressed, err := codec.Compress(codec.LevelBest, headerPlain)
	if err != nil {
		return err
	}
	if err := w.appendSection(section.TypeHeader, headerCompressed); err != nil {
		return err
	}
	if w.policy.HasXHeader {
		xheaderCompressed, err := codec.Compress(codec.LevelBest, w.hdr.EncodeXHeader())
		if err != nil {
			return err
		}
		if err := w.appendSection(section.TypeXHeader, xheaderCompressed); err != nil {
			return err
		}
	}
	media, err := section.EncodeMedia(w.mediaDescriptor())
	if err != nil {
		return err
	}
	volumeType := section.TypeVolume
	if w.cfg.Variant == format.Smart {
		volumeType = section.TypeDisk
	}
	return w.appendSection(volumeType, media)
}

// openSectorsSection begins a new (sectors, table, table2) triplet: it
// reserves the section header with a placeholder size/next_offset that
// closeSectorsTriplet backpatches once the triplet's payload is known.
func (w *Writer) openSectorsSection() error {
	w.sectorsHeaderOffset = w.lastSectionOffset
	if err := section.WriteHeader(w.currentFile, section.TypeSectors, 0, 0); err != nil {
		return err
	}
	w.budget.Consume(section.HeaderSize)
	w.lastSectionOffset += section.HeaderSize
	w.sectorsStartOffset = w.lastSectionOffset
	w.pendingRaw = nil
	return nil
}

// closeSectorsTriplet finalizes the current sectors section (backpatching
// its header now that the payload size is known) and appends its
// table/table2 sections, per the table/table2 byte-identical invariant.
func (w *Writer) closeSectorsTriplet() error {
	if w.sectorsHeaderOffset < 0 {
		return nil
	}
	payloadSize := w.lastSectionOffset - w.sectorsStartOffset
	tableOffset := w.lastSectionOffset

	if _, err := w.currentFile.Seek(w.sectorsHeaderOffset, 0); err != nil {
		return errkind.New(errkind.IO, "Writer.closeSectorsTriplet", err)
	}
	if err := section.WriteHeader(w.currentFile, section.TypeSectors, uint64(payloadSize), uint64(tableOffset)); err != nil {
		return err
	}
	if _, err := w.currentFile.Seek(tableOffset, 0); err != nil {
		return errkind.New(errkind.IO, "Writer.closeSectorsTriplet", err)
	}

	tablePayload := chunktable.Encode(uint64(w.sectorsStartOffset), w.pendingRaw)
	table2Offset := tableOffset + section.HeaderSize + int64(len(tablePayload))
	if _, err := section.Write(w.currentFile, section.TypeTable, tablePayload, uint64(table2Offset)); err != nil {
		return err
	}
	w.budget.Consume(section.HeaderSize + int64(len(tablePayload)))
	w.lastSectionOffset = table2Offset

	afterTriplet := table2Offset + section.HeaderSize + int64(len(tablePayload))
	if _, err := section.Write(w.currentFile, section.TypeTable2, tablePayload, uint64(afterTriplet)); err != nil {
		return err
	}
	w.budget.Consume(section.HeaderSize + int64(len(tablePayload)))
	w.lastSectionOffset = afterTriplet

	for i, raw := range w.pendingRaw {
		offset, compressed := chunktable.DecodeEntry(raw)
		var length uint32
		if i+1 < len(w.pendingRaw) {
			next, _ := chunktable.DecodeEntry(w.pendingRaw[i+1])
			length = next - offset
		} else {
			length = uint32(payloadSize) - offset
		}
		w.table.Append(chunktable.Entry{
			SegmentID:    uint16(w.segmentNumber),
			Offset:       uint32(w.sectorsStartOffset) + offset,
			Compressed:   compressed,
			StoredLength: length,
		})
	}

	w.sectorsHeaderOffset = -1
	return nil
}

// openNextSegment opens segment (w.segmentNumber + 1), writes its file
// envelope, and — for the first segment only — the header/header2/volume
// metadata, then begins the first sectors triplet.
func (w *Writer) openNextSegment(first bool) error {
	w.segmentNumber++
	name, err := segment.Name(w.cfg.OutputBaseName, w.policy, w.segmentNumber)
	if err != nil {
		return err
	}
	f, err := os.Create(name)
	if err != nil {
		return errkind.New(errkind.IO, "Writer.openNextSegment", err)
	}
	w.currentFile = f
	w.currentPath = name
	w.budget = segment.NewBudget(w.segmentSizeCap())
	w.sectorsHeaderOffset = -1

	if err := segment.WriteFileHeader(w.currentFile, w.policy, uint16(w.segmentNumber)); err != nil {
		return err
	}
	w.budget.Consume(segment.FileHeaderSize)
	w.lastSectionOffset = segment.FileHeaderSize

	if first {
		if err := w.writeOpeningMetadata(); err != nil {
			return err
		}
	}
	return w.openSectorsSection()
}

// rollSegment closes the current triplet, terminates the segment with
// "next", and opens the following one.
func (w *Writer) rollSegment() error {
	if err := w.closeSectorsTriplet(); err != nil {
		return err
	}
	if err := w.appendTerminator(section.TypeNext); err != nil {
		return err
	}
	if err := w.currentFile.Close(); err != nil {
		return errkind.New(errkind.IO, "Writer.rollSegment", err)
	}
	return w.openNextSegment(false)
}

// finalize closes the last triplet and writes the trailing sections
// (data, digest, hash, error2, done), per spec §4.3/§4.6.
func (w *Writer) finalize() error {
	w.state = StateFinalizing
	if err := w.closeSectorsTriplet(); err != nil {
		return err
	}

	media, err := section.EncodeMedia(w.mediaDescriptor())
	if err != nil {
		return err
	}
	if err := w.appendSection(section.TypeData, media); err != nil {
		return err
	}

	var md5Sum [16]byte
	copy(md5Sum[:], w.md5.Sum(nil))
	var sha1Sum [20]byte
	if w.sha1 != nil {
		copy(sha1Sum[:], w.sha1.Sum(nil))
		if err := w.appendSection(section.TypeDigest, section.EncodeDigest(section.Digest{MD5: md5Sum, SHA1: sha1Sum})); err != nil {
			return err
		}
	}
	if err := w.appendSection(section.TypeHash, section.EncodeHash(section.Hash{MD5: md5Sum, SHA1: sha1Sum})); err != nil {
		return err
	}
	if err := w.appendSection(section.TypeError2, section.EncodeError2(w.errorEntries)); err != nil {
		return err
	}
	if err := w.appendTerminator(section.TypeDone); err != nil {
		return err
	}
	if err := w.currentFile.Close(); err != nil {
		return errkind.New(errkind.IO, "Writer.finalize", err)
	}
	w.state = StateClosed
	return nil
}

// MD5 returns the running MD5 of every chunk written so far.
func (w *Writer) MD5() [16]byte {
	var sum [16]byte
	copy(sum[:], w.md5.Sum(nil))
	return sum
}
