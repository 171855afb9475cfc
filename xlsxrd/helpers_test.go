package xlsxrd

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// entry is one archive member for fixture building.
type entry struct {
	name   string
	data   string
	stored bool
}

// buildArchive assembles a container with the standard library's writer,
// which the reader under test never touches, so fixtures built this way
// are independent of the code being checked.
func buildArchive(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		method := zip.Deflate
		if e.stored {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		require.NoError(t, err)
		_, err = w.Write([]byte(e.data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type sheetPart struct {
	name string
	rows string // raw <row> elements
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`</Types>`

// workbookArchive builds a complete spreadsheet archive: manifest,
// relationships, one part per sheet, and a shared-string part when sst
// is non-nil.
func workbookArchive(t *testing.T, sheets []sheetPart, sst []string) []byte {
	t.Helper()
	entries := []entry{{name: "[Content_Types].xml", data: contentTypesXML}}

	var manifest, rels strings.Builder
	manifest.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"` +
		` xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets>`)
	rels.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for i, sh := range sheets {
		id := i + 1
		fmt.Fprintf(&manifest, `<sheet name="%s" sheetId="%d" r:id="rId%d"/>`, sh.name, id, id)
		fmt.Fprintf(&rels,
			`<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet%d.xml"/>`,
			id, id)
		entries = append(entries, entry{
			name: fmt.Sprintf("xl/worksheets/sheet%d.xml", id),
			data: `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
				`<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>` +
				sh.rows + `</sheetData></worksheet>`,
		})
	}
	manifest.WriteString(`</sheets></workbook>`)
	rels.WriteString(`</Relationships>`)
	entries = append(entries,
		entry{name: "xl/workbook.xml", data: manifest.String()},
		entry{name: "xl/_rels/workbook.xml.rels", data: rels.String()},
	)

	if sst != nil {
		var b strings.Builder
		fmt.Fprintf(&b, `<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="%d" uniqueCount="%d">`,
			len(sst), len(sst))
		for _, s := range sst {
			fmt.Fprintf(&b, "<si><t>%s</t></si>", escapeXMLText(s))
		}
		b.WriteString("</sst>")
		entries = append(entries, entry{name: "xl/sharedStrings.xml", data: b.String()})
	}
	return buildArchive(t, entries)
}

func openFixture(t *testing.T, data []byte) *Workbook {
	t.Helper()
	wb, err := OpenWorkbook("fixture.xlsx", &OpenWorkbookOptions{FileContents: data})
	require.NoError(t, err)
	return wb
}

func escapeXMLText(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
