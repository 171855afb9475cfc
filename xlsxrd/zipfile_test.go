package xlsxrd

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// rawZipSpec describes a single-entry archive assembled byte by byte, so
// individual header fields can be bent deliberately.
type rawZipSpec struct {
	method   uint16
	flags    uint16
	name     []byte
	payload  []byte // already compressed per method
	usize    uint32
	comment  string
	localSig uint32
	cdSig    uint32
}

func rawZip(spec rawZipSpec) []byte {
	if spec.localSig == 0 {
		spec.localSig = sigLocalHeader
	}
	if spec.cdSig == 0 {
		spec.cdSig = sigCentralDir
	}
	var buf bytes.Buffer
	u16 := func(v uint16) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		buf.Write(b[:])
	}
	u32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}

	u32(spec.localSig)
	u16(20)
	u16(spec.flags)
	u16(spec.method)
	u16(0) // time
	u16(0) // date
	u32(0) // crc
	u32(uint32(len(spec.payload)))
	u32(spec.usize)
	u16(uint16(len(spec.name)))
	u16(0)
	buf.Write(spec.name)
	buf.Write(spec.payload)

	cdOffset := buf.Len()
	u32(spec.cdSig)
	u16(20)
	u16(20)
	u16(spec.flags)
	u16(spec.method)
	u16(0) // time
	u16(0) // date
	u32(0) // crc
	u32(uint32(len(spec.payload)))
	u32(spec.usize)
	u16(uint16(len(spec.name)))
	u16(0) // extra
	u16(0) // comment
	u16(0) // disk
	u16(0) // internal attrs
	u32(0) // external attrs
	u32(0) // local header offset
	buf.Write(spec.name)
	cdSize := buf.Len() - cdOffset

	u32(sigEOCD)
	u16(0)
	u16(0)
	u16(1)
	u16(1)
	u32(uint32(cdSize))
	u32(uint32(cdOffset))
	u16(uint16(len(spec.comment)))
	buf.WriteString(spec.comment)
	return buf.Bytes()
}

func deflateBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = fw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, fw.Close())
	return buf.Bytes()
}

func TestOpenArchiveAndExtract(t *testing.T) {
	data := buildArchive(t, []entry{
		{name: "xl/workbook.xml", data: "<workbook/>"},
		{name: "stored.txt", data: "plain bytes", stored: true},
		{name: "docProps/app.xml", data: "<Properties/>"},
	})
	a, err := OpenArchive(data)
	require.NoError(t, err)

	names := make([]string, 0, 3)
	for _, e := range a.Entries() {
		names = append(names, e.Name)
	}
	want := []string{"xl/workbook.xml", "stored.txt", "docProps/app.xml"}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("entry %d = %q, want %q", i, names[i], name)
		}
	}

	for _, tt := range []struct {
		name string
		want string
	}{
		{"xl/workbook.xml", "<workbook/>"},
		{"stored.txt", "plain bytes"},
	} {
		got, err := a.Extract(tt.name)
		if err != nil {
			t.Errorf("Extract(%q) error = %v", tt.name, err)
			continue
		}
		if string(got) != tt.want {
			t.Errorf("Extract(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}

	if !a.Has("stored.txt") {
		t.Error(`Has("stored.txt") = false, want true`)
	}
	if a.Has("absent.txt") {
		t.Error(`Has("absent.txt") = true, want false`)
	}
}

func TestOpenArchiveEmpty(t *testing.T) {
	// An end record with zero entries and no directory is a valid, empty
	// archive.
	a, err := OpenArchive(buildArchive(t, nil))
	require.NoError(t, err)
	if len(a.Entries()) != 0 {
		t.Errorf("len(Entries) = %d, want 0", len(a.Entries()))
	}
	if a.Has("anything") {
		t.Error(`Has("anything") = true, want false`)
	}
}

func TestExtractMissingEntry(t *testing.T) {
	a, err := OpenArchive(buildArchive(t, []entry{{name: "a.txt", data: "x"}}))
	require.NoError(t, err)

	_, err = a.Extract("missing.txt")
	var notFound *EntryNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Extract error = %v, want EntryNotFoundError", err)
	}
	if notFound.Name != "missing.txt" {
		t.Errorf("Name = %q, want missing.txt", notFound.Name)
	}
	if got := err.Error(); got != "no entry named <missing.txt> in archive" {
		t.Errorf("Error() = %q", got)
	}
}

func TestOpenArchiveNotAnArchive(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("PK")},
		{"no end record", bytes.Repeat([]byte("not a zip. "), 20)},
	}
	for _, tt := range tests {
		_, err := OpenArchive(tt.data)
		var format *ArchiveFormatError
		if !errors.As(err, &format) {
			t.Errorf("%s: error = %v, want ArchiveFormatError", tt.name, err)
		}
	}
}

func TestOpenArchiveCorruptDirectory(t *testing.T) {
	data := rawZip(rawZipSpec{
		name:    []byte("a.txt"),
		payload: []byte("hi"),
		usize:   2,
		cdSig:   0xdeadbeef,
	})
	_, err := OpenArchive(data)
	var dir *CentralDirectoryError
	if !errors.As(err, &dir) {
		t.Fatalf("error = %v, want CentralDirectoryError", err)
	}
}

func TestOpenArchiveWithComment(t *testing.T) {
	data := rawZip(rawZipSpec{
		name:    []byte("a.txt"),
		payload: []byte("hi"),
		usize:   2,
		comment: "written by a tool that likes trailing comments",
	})
	a, err := OpenArchive(data)
	require.NoError(t, err)
	got, err := a.Extract("a.txt")
	require.NoError(t, err)
	if string(got) != "hi" {
		t.Errorf("Extract = %q, want hi", got)
	}
	if a.Comment() != "written by a tool that likes trailing comments" {
		t.Errorf("Comment = %q", a.Comment())
	}
}

func TestExtractDeflated(t *testing.T) {
	payload := deflateBytes(t, "hello deflate")
	data := rawZip(rawZipSpec{
		method:  methodDeflated,
		name:    []byte("d.txt"),
		payload: payload,
		usize:   13,
	})
	a, err := OpenArchive(data)
	require.NoError(t, err)
	got, err := a.Extract("d.txt")
	require.NoError(t, err)
	if string(got) != "hello deflate" {
		t.Errorf("Extract = %q, want %q", got, "hello deflate")
	}
}

func TestExtractSizeMismatch(t *testing.T) {
	payload := deflateBytes(t, "hello deflate")
	data := rawZip(rawZipSpec{
		method:  methodDeflated,
		name:    []byte("d.txt"),
		payload: payload,
		usize:   5, // directory lies about the inflated size
	})
	a, err := OpenArchive(data)
	require.NoError(t, err)
	_, err = a.Extract("d.txt")
	var local *LocalHeaderError
	if !errors.As(err, &local) {
		t.Fatalf("error = %v, want LocalHeaderError", err)
	}
}

func TestExtractUnsupportedMethod(t *testing.T) {
	data := rawZip(rawZipSpec{
		method:  99,
		name:    []byte("z.bin"),
		payload: []byte("??"),
		usize:   2,
	})
	a, err := OpenArchive(data)
	require.NoError(t, err)
	_, err = a.Extract("z.bin")
	var unsupported *UnsupportedCompressionError
	if !errors.As(err, &unsupported) {
		t.Fatalf("error = %v, want UnsupportedCompressionError", err)
	}
	if unsupported.Method != 99 {
		t.Errorf("Method = %d, want 99", unsupported.Method)
	}
}

func TestExtractBadLocalHeader(t *testing.T) {
	data := rawZip(rawZipSpec{
		name:     []byte("a.txt"),
		payload:  []byte("hi"),
		usize:    2,
		localSig: 0x11111111,
	})
	a, err := OpenArchive(data)
	require.NoError(t, err)
	_, err = a.Extract("a.txt")
	var local *LocalHeaderError
	if !errors.As(err, &local) {
		t.Fatalf("error = %v, want LocalHeaderError", err)
	}
	if local.Name != "a.txt" {
		t.Errorf("Name = %q, want a.txt", local.Name)
	}
}

func TestEntryNameEncodings(t *testing.T) {
	// 0x82 is é in code page 437; without the UTF-8 flag the name must
	// decode through that table.
	cp437 := rawZip(rawZipSpec{
		name:    []byte{'r', 0x82, 's', 'u', 'm', 0x82},
		payload: []byte("x"),
		usize:   1,
	})
	a, err := OpenArchive(cp437)
	require.NoError(t, err)
	if !a.Has("résumé") {
		t.Errorf("entries = %v, want résumé", a.Entries())
	}

	utf8Name := rawZip(rawZipSpec{
		flags:   flagUTF8,
		name:    []byte("日本語.txt"),
		payload: []byte("x"),
		usize:   1,
	})
	a, err = OpenArchive(utf8Name)
	require.NoError(t, err)
	if !a.Has("日本語.txt") {
		t.Errorf("entries = %v, want 日本語.txt", a.Entries())
	}
}

func TestArchiveDuplicateNames(t *testing.T) {
	data := buildArchive(t, []entry{
		{name: "dup.txt", data: "first"},
		{name: "dup.txt", data: "second"},
	})
	a, err := OpenArchive(data)
	require.NoError(t, err)
	if len(a.Entries()) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(a.Entries()))
	}
	got, err := a.Extract("dup.txt")
	require.NoError(t, err)
	if string(got) != "second" {
		t.Errorf("Extract = %q, want the last record to win", got)
	}
}
