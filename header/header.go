// Package header implements the header value store (spec §4.7, C8): an
// ordered multimap of acquisition metadata, serialized as the legacy
// ASCII "header" section, the UTF-16LE "header2" section, and (ewfx
// only) an XML "xheader" variant.
package header

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/go-forensics/ewfgo/errkind"
)

// Well-known identifiers, matching the single-letter codes the acquisition
// tools have used since EnCase's original header format.
const (
	FieldCaseNumber       = "case_number"
	FieldDescription      = "description"
	FieldExaminerName     = "examiner_name"
	FieldEvidenceNumber   = "evidence_number"
	FieldNotes            = "notes"
	FieldAcquiryDate      = "acquiry_date"
	FieldSystemDate       = "system_date"
	FieldAcquiryOS        = "acquiry_operating_system"
	FieldAcquirySoftware  = "acquiry_software"
	FieldSoftwareVersion  = "acquiry_software_version"
	FieldPasswordHash     = "password_hash"
	FieldCompressionType  = "compression_type"
	FieldModel            = "model"
	FieldSerialNumber     = "serial_number"
)

// code maps a well-known identifier to the single-letter tag used on the
// wire, preserving byte-compatibility with existing EWF readers.
var code = map[string]string{
	FieldCaseNumber:      "c",
	FieldDescription:     "a",
	FieldExaminerName:    "e",
	FieldEvidenceNumber:  "n",
	FieldNotes:           "t",
	FieldAcquiryDate:     "m",
	FieldSystemDate:      "u",
	FieldAcquiryOS:       "ov",
	FieldAcquirySoftware: "sw",
	FieldSoftwareVersion: "av",
	FieldPasswordHash:    "p",
	FieldCompressionType: "cp",
	FieldModel:           "md",
	FieldSerialNumber:    "sn",
}

var fieldByCode = func() map[string]string {
	m := make(map[string]string, len(code))
	for field, c := range code {
		m[c] = field
	}
	return m
}()

// orderedCodes is the column order every serialized record uses; it must
// stay stable across writes so repeated acquisitions of identical input
// are byte-identical.
var orderedCodes = []string{"c", "n", "a", "e", "t", "av", "ov", "m", "u", "p", "cp", "md", "sn"}

// Clock supplies the current time for default header field values.
type Clock interface{ Now() time.Time }

// SystemInfo supplies the detected OS identification string.
type SystemInfo interface{ OS() string }

// Store is an ordered, case-sensitive multimap of header fields.
type Store struct {
	order  []string
	values map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{values: make(map[string]string)}
}

// Set inserts or overwrites field, preserving its original position in
// insertion order if already present.
func (s *Store) Set(field, value string) {
	if _, ok := s.values[field]; !ok {
		s.order = append(s.order, field)
	}
	s.values[field] = value
}

// Get returns field's value and whether it was set.
func (s *Store) Get(field string) (string, bool) {
	v, ok := s.values[field]
	return v, ok
}

// ApplyDefaults fills in unset well-known date/OS/software fields, per
// spec §4.7 ("Unset well-known fields receive defaults at serialization
// time").
func (s *Store) ApplyDefaults(clock Clock, sys SystemInfo, softwareVersion string) {
	now := clock.Now().Format("2006 1 2 15 4 5")
	if _, ok := s.Get(FieldAcquiryDate); !ok {
		s.Set(FieldAcquiryDate, now)
	}
	if _, ok := s.Get(FieldSystemDate); !ok {
		s.Set(FieldSystemDate, now)
	}
	if _, ok := s.Get(FieldAcquiryOS); !ok {
		s.Set(FieldAcquiryOS, sys.OS())
	}
	if _, ok := s.Get(FieldSoftwareVersion); !ok {
		s.Set(FieldSoftwareVersion, softwareVersion)
	}
}

// plainText renders the newline-terminated record body: a "1" line, the
// "main" category descriptor line, a tab-separated row of the codes of
// the fields present, a tab-separated row of their values, and a blank
// line.
func (s *Store) plainText() string {
	var present []string
	for _, c := range orderedCodes {
		if _, ok := s.Get(fieldByCode[c]); ok {
			present = append(present, c)
		}
	}
	var b strings.Builder
	b.WriteString("1\n")
	b.WriteString("main\n")
	b.WriteString(strings.Join(present, "\t") + "\n")
	row := make([]string, len(present))
	for i, c := range present {
		v, _ := s.Get(fieldByCode[c])
		row[i] = v
	}
	b.WriteString(strings.Join(row, "\t") + "\n")
	b.WriteString("\n")
	return b.String()
}

// EncodeHeader renders the legacy ASCII "header" payload (pre-compression),
// transcoded into the variant's declared codepage. codepage "" means the
// text is ASCII-only and passed through unchanged.
func (s *Store) EncodeHeader(codepageName string) ([]byte, error) {
	text := s.plainText()
	enc, err := lookupCodepage(codepageName)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return []byte(text), nil
	}
	out, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, errkind.New(errkind.Unsupported, "header.EncodeHeader", err)
	}
	return out, nil
}

// DecodeHeader parses an ASCII "header" payload back into a Store.
func DecodeHeader(payload []byte, codepageName string) (*Store, error) {
	enc, err := lookupCodepage(codepageName)
	if err != nil {
		return nil, err
	}
	text := payload
	if enc != nil {
		decoded, decErr := enc.NewDecoder().Bytes(payload)
		if decErr != nil {
			return nil, errkind.New(errkind.Corruption, "header.DecodeHeader", decErr)
		}
		text = decoded
	}
	return parseRecords(string(text))
}

// EncodeHeader2 renders the UTF-16LE-with-BOM "header2" payload.
func (s *Store) EncodeHeader2() ([]byte, error) {
	text := s.plainText()
	enc := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	out, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, errkind.New(errkind.Unsupported, "header.EncodeHeader2", err)
	}
	return out, nil
}

// DecodeHeader2 parses a UTF-16LE "header2" payload back into a Store.
func DecodeHeader2(payload []byte) (*Store, error) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	text, err := enc.NewDecoder().Bytes(payload)
	if err != nil {
		return nil, errkind.New(errkind.Corruption, "header.DecodeHeader2", err)
	}
	return parseRecords(strings.TrimPrefix(string(text), "\xef\xbb\xbf"))
}

// EncodeXHeader renders the ewfx XML header variant.
func (s *Store) EncodeXHeader() []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<xheader>\n")
	for _, field := range s.order {
		v, _ := s.Get(field)
		fmt.Fprintf(&b, "  <%s>%s</%s>\n", field, escapeXML(v), field)
	}
	b.WriteString("</xheader>\n")
	return b.Bytes()
}

func escapeXML(v string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(v)
}

func lookupCodepage(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "ascii", "utf-8", "utf8":
		return nil, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	default:
		return nil, errkind.New(errkind.Unsupported, "header.lookupCodepage", fmt.Errorf("unknown codepage %q", name))
	}
}

// parseRecords parses the "category\ncolumns\nvalues" record body shared
// by both header and header2, tolerating the simpler single
// "identifier\tvalue" per-line form some writers emit.
func parseRecords(text string) (*Store, error) {
	s := New()
	lines := strings.Split(text, "\n")

	var columns []string
	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if line == "" || line == "main" || line == "1" {
			continue
		}
		if strings.Contains(line, "\t") {
			parts := strings.Split(line, "\t")
			if columns == nil && isAllKnownCodes(parts) {
				columns = parts
				continue
			}
			if columns != nil {
				for i, v := range parts {
					if i >= len(columns) {
						break
					}
					if field, ok := fieldByCode[columns[i]]; ok {
						s.Set(field, v)
					}
				}
				columns = nil
				continue
			}
			if len(parts) == 2 {
				if field, ok := fieldByCode[parts[0]]; ok {
					s.Set(field, parts[1])
				}
			}
		}
	}
	return s, nil
}

func isAllKnownCodes(parts []string) bool {
	for _, p := range parts {
		if _, ok := fieldByCode[p]; !ok {
			return false
		}
	}
	return true
}
