package xlsxrd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"golang.org/x/text/encoding/charmap"
)

// ZIP container access. The archive is held fully in memory and decoded
// with direct offset arithmetic: locate the end-of-central-directory
// record, walk the central directory into an entry table, then jump to
// each local header on demand. Sizes and offsets always come from the
// central directory, so entries written with trailing data descriptors
// read the same as any other.

const (
	sigEOCD         = 0x06054b50
	sigCentralDir   = 0x02014b50
	sigLocalHeader  = 0x04034b50
	eocdFixedSize   = 22
	centralFixedLen = 46
	localFixedLen   = 30

	methodStored   = 0
	methodDeflated = 8

	// General-purpose flag bit 11: the entry name is UTF-8. Names
	// without it are in code page 437.
	flagUTF8 = 0x0800
)

// ArchiveEntry describes one file recorded in the central directory.
type ArchiveEntry struct {
	Name             string
	Method           uint16
	CompressedSize   uint32
	UncompressedSize uint32

	flags        uint16
	headerOffset uint32
}

// Archive is a read-only view over one ZIP container.
type Archive struct {
	data    []byte
	entries []ArchiveEntry
	index   map[string]int
	comment string
}

// OpenArchive indexes the ZIP container held in data. The slice is
// retained and must not be modified afterwards.
//
// The end-of-central-directory record is found by scanning backward for
// its signature; the match nearest the end of the file wins. An archive
// comment that itself contains the signature bytes can therefore shadow
// the real record, which is accepted as a limitation of comment-bearing
// archives.
func OpenArchive(data []byte) (*Archive, error) {
	eocd, err := findEOCD(data)
	if err != nil {
		return nil, err
	}
	total := int(binary.LittleEndian.Uint16(data[eocd+10:]))
	cdOffset := int(binary.LittleEndian.Uint32(data[eocd+16:]))
	if cdOffset > eocd {
		return nil, &CentralDirectoryError{Offset: cdOffset, Reason: "directory offset beyond end record"}
	}

	a := &Archive{
		data:    data,
		entries: make([]ArchiveEntry, 0, total),
		index:   make(map[string]int, total),
		comment: eocdComment(data, eocd),
	}
	pos := cdOffset
	for i := 0; i < total; i++ {
		if pos+centralFixedLen > len(data) {
			return nil, &CentralDirectoryError{Offset: pos, Reason: "truncated file header"}
		}
		if sig := binary.LittleEndian.Uint32(data[pos:]); sig != sigCentralDir {
			return nil, &CentralDirectoryError{Offset: pos, Reason: fmt.Sprintf("bad file header signature %#08x", sig)}
		}
		flags := binary.LittleEndian.Uint16(data[pos+8:])
		entry := ArchiveEntry{
			Method:           binary.LittleEndian.Uint16(data[pos+10:]),
			CompressedSize:   binary.LittleEndian.Uint32(data[pos+20:]),
			UncompressedSize: binary.LittleEndian.Uint32(data[pos+24:]),
			flags:            flags,
			headerOffset:     binary.LittleEndian.Uint32(data[pos+42:]),
		}
		nameLen := int(binary.LittleEndian.Uint16(data[pos+28:]))
		extraLen := int(binary.LittleEndian.Uint16(data[pos+30:]))
		commentLen := int(binary.LittleEndian.Uint16(data[pos+32:]))
		if pos+centralFixedLen+nameLen > len(data) {
			return nil, &CentralDirectoryError{Offset: pos, Reason: "file name extends past end of archive"}
		}
		entry.Name = decodeEntryName(data[pos+centralFixedLen:pos+centralFixedLen+nameLen], flags)

		a.index[entry.Name] = len(a.entries)
		a.entries = append(a.entries, entry)
		pos += centralFixedLen + nameLen + extraLen + commentLen
	}
	return a, nil
}

// findEOCD returns the offset of the end-of-central-directory record.
func findEOCD(data []byte) (int, error) {
	if len(data) < eocdFixedSize {
		return 0, &ArchiveFormatError{Reason: "too small to hold an end-of-central-directory record"}
	}
	for pos := len(data) - eocdFixedSize; pos >= 0; pos-- {
		if binary.LittleEndian.Uint32(data[pos:]) == sigEOCD {
			return pos, nil
		}
	}
	return 0, &ArchiveFormatError{Reason: "end-of-central-directory record not found"}
}

// eocdComment reads the trailing archive comment, clamped to the bytes
// actually present.
func eocdComment(data []byte, eocd int) string {
	clen := int(binary.LittleEndian.Uint16(data[eocd+20:]))
	start := eocd + eocdFixedSize
	if start+clen > len(data) {
		clen = len(data) - start
	}
	return string(data[start : start+clen])
}

// decodeEntryName interprets raw name bytes per the entry's flag bits.
func decodeEntryName(raw []byte, flags uint16) string {
	if flags&flagUTF8 != 0 {
		return string(raw)
	}
	decoded, err := charmap.CodePage437.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// Entries returns the central directory in file order.
func (a *Archive) Entries() []ArchiveEntry {
	out := make([]ArchiveEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Has reports whether the archive records an entry with the exact name.
func (a *Archive) Has(name string) bool {
	_, ok := a.index[name]
	return ok
}

// Size returns the byte length of the underlying container.
func (a *Archive) Size() int {
	return len(a.data)
}

// Comment returns the archive's trailing comment, usually empty.
func (a *Archive) Comment() string {
	return a.comment
}

// Extract returns the decompressed contents of the named entry. When the
// same name appears more than once in the central directory the last
// record wins.
func (a *Archive) Extract(name string) ([]byte, error) {
	i, ok := a.index[name]
	if !ok {
		return nil, &EntryNotFoundError{Name: name}
	}
	return a.extract(&a.entries[i])
}

func (a *Archive) extract(e *ArchiveEntry) ([]byte, error) {
	off := int(e.headerOffset)
	if off+localFixedLen > len(a.data) {
		return nil, &LocalHeaderError{Name: e.Name, Offset: e.headerOffset, Reason: "header extends past end of archive"}
	}
	if sig := binary.LittleEndian.Uint32(a.data[off:]); sig != sigLocalHeader {
		return nil, &LocalHeaderError{Name: e.Name, Offset: e.headerOffset, Reason: fmt.Sprintf("bad signature %#08x", sig)}
	}
	// Name and extra lengths in the local header may differ from the
	// central directory, so they are re-read here to find the payload.
	nameLen := int(binary.LittleEndian.Uint16(a.data[off+26:]))
	extraLen := int(binary.LittleEndian.Uint16(a.data[off+28:]))
	start := off + localFixedLen + nameLen + extraLen
	end := start + int(e.CompressedSize)
	if start > len(a.data) || end > len(a.data) {
		return nil, &LocalHeaderError{Name: e.Name, Offset: e.headerOffset, Reason: "entry data extends past end of archive"}
	}
	compressed := a.data[start:end]

	switch e.Method {
	case methodStored:
		out := make([]byte, len(compressed))
		copy(out, compressed)
		return out, nil
	case methodDeflated:
		rd := flate.NewReader(bytes.NewReader(compressed))
		defer rd.Close()
		out, err := io.ReadAll(rd)
		if err != nil {
			return nil, &LocalHeaderError{Name: e.Name, Offset: e.headerOffset, Reason: fmt.Sprintf("inflate: %v", err)}
		}
		if len(out) != int(e.UncompressedSize) {
			return nil, &LocalHeaderError{
				Name:   e.Name,
				Offset: e.headerOffset,
				Reason: fmt.Sprintf("inflated to %d bytes, directory records %d", len(out), e.UncompressedSize),
			}
		}
		return out, nil
	default:
		return nil, &UnsupportedCompressionError{Name: e.Name, Method: e.Method}
	}
}
