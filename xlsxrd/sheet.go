package xlsxrd

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Row is one row element from a sheet part. Cells maps the 1-based
// column index to the decoded value; columns the part does not mention
// are simply absent.
type Row struct {
	Num   int
	Cells map[int]CellValue
}

// Record is one data row keyed by the labels of the sheet's header row.
type Record map[string]CellValue

// ColumnIndex converts the letter prefix of a cell reference to a
// 1-based column index: A is 1, Z is 26, AA is 27. Trailing digits are
// ignored, so a full reference such as BC23 works directly. Returns 0
// when the reference has no letter prefix.
func ColumnIndex(ref string) int {
	idx := 0
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case c >= 'A' && c <= 'Z':
			idx = idx*26 + int(c-'A') + 1
		case c >= 'a' && c <= 'z':
			idx = idx*26 + int(c-'a') + 1
		default:
			return idx
		}
	}
	return idx
}

// ColumnName is the inverse of ColumnIndex: 1 is A, 26 is Z, 27 is AA.
func ColumnName(idx int) string {
	if idx <= 0 {
		return ""
	}
	var buf [8]byte
	i := len(buf)
	for idx > 0 {
		idx--
		i--
		buf[i] = byte('A' + idx%26)
		idx /= 26
	}
	return string(buf[i:])
}

// Rows decodes the named sheet into its rows in document order. Rows the
// part does not write are not represented; use Row.Num when the gap
// matters.
func (w *Workbook) Rows(sheetName string) ([]Row, error) {
	part, err := w.SheetPartPath(sheetName)
	if err != nil {
		return nil, err
	}
	data, err := w.archive.Extract(part)
	if err != nil {
		return nil, errors.Wrapf(err, "sheet %q", sheetName)
	}
	rows := parseSheetRows(data, w.shared)
	w.logger.Debug("sheet decoded",
		zap.String("sheet", sheetName),
		zap.String("part", part),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// Records decodes the named sheet and keys each data row by the labels
// of its first row. See RecordsFromRows for the header rules.
func (w *Workbook) Records(sheetName string) ([]Record, error) {
	rows, err := w.Rows(sheetName)
	if err != nil {
		return nil, err
	}
	return RecordsFromRows(rows), nil
}

// Headers returns the named sheet's header labels in column order.
func (w *Workbook) Headers(sheetName string) ([]string, error) {
	rows, err := w.Rows(sheetName)
	if err != nil {
		return nil, err
	}
	return HeadersFromRows(rows), nil
}

// parseSheetRows walks the sheet part's sheetData element. Cell values
// are coerced as they are read; shared-string cells resolve against the
// supplied table.
func parseSheetRows(data []byte, shared []string) []Row {
	sc := NewScanner(data)
	var (
		rows    []Row
		current *Row
		lastCol int
	)
	for {
		tok, ok := sc.Next()
		if !ok {
			break
		}
		switch {
		case tok.Is(TokenStart, "row"):
			num := len(rows) + 1
			if r, ok := tok.Attr("r"); ok {
				if n, err := strconv.Atoi(r); err == nil && n > 0 {
					num = n
				}
			}
			row := Row{Num: num, Cells: map[int]CellValue{}}
			if tok.SelfClosing {
				rows = append(rows, row)
				continue
			}
			current = &row
			lastCol = 0
		case tok.Is(TokenEnd, "row"):
			if current != nil {
				rows = append(rows, *current)
				current = nil
			}
		case tok.Is(TokenEnd, "sheetData"):
			return rows
		case current != nil && tok.Is(TokenStart, "c"):
			ref, _ := tok.Attr("r")
			col := ColumnIndex(ref)
			if col <= 0 {
				col = lastCol + 1
			}
			lastCol = col
			current.Cells[col] = parseCell(sc, &tok, shared)
		}
	}
	return rows
}

// parseCell reads one cell element. The open token carries the type
// attribute; the body may hold a value element, an inline string, or a
// formula whose text is ignored.
func parseCell(sc *Scanner, open *Token, shared []string) CellValue {
	typ, _ := open.Attr("t")
	var (
		raw       string
		hasValue  bool
		inline    string
		hasInline bool
	)
	if !open.SelfClosing {
	body:
		for {
			tok, ok := sc.Next()
			if !ok {
				break
			}
			switch {
			case tok.Is(TokenStart, "v"):
				hasValue = true
				if !tok.SelfClosing {
					raw = sc.textUntil("v")
				}
			case tok.Is(TokenStart, "is"):
				hasInline = true
				if !tok.SelfClosing {
					inline = collectRuns(sc, "is")
				}
			case tok.Is(TokenEnd, "c"):
				break body
			}
		}
	}
	return coerceCell(typ, raw, hasValue, inline, hasInline, shared)
}

// RecordsFromRows keys the rows after the first by the first row's
// labels. A label is a header cell's display string, trimmed; columns
// with an empty label are dropped, and when a label repeats the first
// column keeps it. Rows with no value in any labeled column are dropped.
// Labeled columns a row leaves empty appear in its record as empty
// values.
func RecordsFromRows(rows []Row) []Record {
	if len(rows) < 2 {
		return nil
	}
	cols := headerColumns(rows[0])
	if len(cols) == 0 {
		return nil
	}
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(Record, len(cols))
		populated := false
		for _, hc := range cols {
			v := row.Cells[hc.col]
			rec[hc.label] = v
			if !v.IsEmpty() {
				populated = true
			}
		}
		if populated {
			records = append(records, rec)
		}
	}
	return records
}

// HeadersFromRows returns the first row's labels in ascending column
// order, with the same empty-label and duplicate rules as
// RecordsFromRows.
func HeadersFromRows(rows []Row) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := headerColumns(rows[0])
	labels := make([]string, len(cols))
	for i, hc := range cols {
		labels[i] = hc.label
	}
	return labels
}

type headerColumn struct {
	col   int
	label string
}

func headerColumns(header Row) []headerColumn {
	cols := make([]headerColumn, 0, len(header.Cells))
	for col, v := range header.Cells {
		label := strings.TrimSpace(v.String())
		if label == "" {
			continue
		}
		cols = append(cols, headerColumn{col: col, label: label})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].col < cols[j].col })
	seen := make(map[string]bool, len(cols))
	kept := cols[:0]
	for _, hc := range cols {
		if seen[hc.label] {
			continue
		}
		seen[hc.label] = true
		kept = append(kept, hc)
	}
	return kept
}
