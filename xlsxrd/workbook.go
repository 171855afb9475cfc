package xlsxrd

import (
	"os"
	"path"
	"strings"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Package part names. Targets in the relationship part are resolved
// against the workbook part's directory.
const (
	partRoot          = "xl"
	partWorkbook      = "xl/workbook.xml"
	partWorkbookRels  = "xl/_rels/workbook.xml.rels"
	partSharedStrings = "xl/sharedStrings.xml"
)

// Workbook represents the contents of one spreadsheet archive: the sheet
// list from the manifest, the relationship targets that locate each
// sheet's part, and the shared-string table.
type Workbook struct {
	archive    *Archive
	filename   string
	sheets     []SheetMeta
	sheetIndex map[string]int
	relTargets map[string]string
	shared     []string
	logger     *zap.Logger
}

// SheetMeta describes one sheet as listed by the workbook manifest, in
// manifest order.
type SheetMeta struct {
	Name    string
	SheetID string
	RelID   string
}

// OpenWorkbookOptions contains options for opening a workbook.
type OpenWorkbookOptions struct {
	// Logger receives debug and warning diagnostics. Nil disables them.
	Logger *zap.Logger

	// FileContents is the archive as bytes.
	// If FileContents is supplied, Filename will not be used, except (possibly) in messages.
	FileContents []byte
}

// OpenWorkbook opens a spreadsheet archive for data extraction.
//
// filename: The path to the file to be opened. ~ will be expanded.
// options: Optional parameters for opening the workbook.
func OpenWorkbook(filename string, options *OpenWorkbookOptions) (*Workbook, error) {
	if options == nil {
		options = &OpenWorkbookOptions{}
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fileFormat, err := InspectFormat(filename, options.FileContents)
	if err != nil {
		return nil, err
	}
	if fileFormat != "" && fileFormat != "xlsx" {
		return nil, errors.Errorf("%s; not supported", FileFormatDescriptions[fileFormat])
	}

	contents := options.FileContents
	if contents == nil {
		expanded, err := expandUserPath(filename)
		if err != nil {
			return nil, err
		}
		contents, err = os.ReadFile(expanded)
		if err != nil {
			return nil, errors.Wrap(err, "read workbook")
		}
	}

	archive, err := OpenArchive(contents)
	if err != nil {
		return nil, err
	}
	wb := &Workbook{
		archive:  archive,
		filename: filename,
		logger:   logger,
	}
	if err := wb.load(); err != nil {
		return nil, err
	}
	return wb, nil
}

func (w *Workbook) load() error {
	manifest, err := w.archive.Extract(partWorkbook)
	if err != nil {
		return errors.Wrap(err, "workbook manifest")
	}
	w.sheets = parseManifest(manifest)
	if len(w.sheets) == 0 {
		return &ArchiveFormatError{Reason: "workbook manifest lists no sheets"}
	}
	w.sheetIndex = make(map[string]int, len(w.sheets))
	for i, s := range w.sheets {
		if _, dup := w.sheetIndex[s.Name]; !dup {
			w.sheetIndex[s.Name] = i
		}
	}

	w.relTargets = map[string]string{}
	rels, err := w.archive.Extract(partWorkbookRels)
	var notFound *EntryNotFoundError
	switch {
	case err == nil:
		w.relTargets = parseRelationships(rels)
	case errors.As(err, &notFound):
		// Sheets cannot be located without the relationship part, but
		// the manifest is still readable. Resolution fails per sheet.
		w.logger.Warn("workbook has no relationship part", zap.String("part", partWorkbookRels))
	default:
		return errors.Wrap(err, "workbook relationships")
	}

	if w.archive.Has(partSharedStrings) {
		sst, err := w.archive.Extract(partSharedStrings)
		if err != nil {
			return errors.Wrap(err, "shared strings")
		}
		w.shared = parseSharedStrings(sst)
	}

	w.logger.Debug("workbook opened",
		zap.String("file", w.filename),
		zap.String("size", units.HumanSize(float64(w.archive.Size()))),
		zap.Int("entries", len(w.archive.entries)),
		zap.Strings("sheets", w.SheetNames()),
		zap.Int("shared_strings", len(w.shared)),
	)
	return nil
}

// SheetNames returns a list of all sheet names, in manifest order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.sheets))
	for i, s := range w.sheets {
		names[i] = s.Name
	}
	return names
}

// Sheets returns the manifest's sheet listing.
func (w *Workbook) Sheets() []SheetMeta {
	out := make([]SheetMeta, len(w.sheets))
	copy(out, w.sheets)
	return out
}

// SharedStrings returns the shared-string table in part order.
func (w *Workbook) SharedStrings() []string {
	return w.shared
}

// Archive returns the underlying container.
func (w *Workbook) Archive() *Archive {
	return w.archive
}

// Filename returns the name the workbook was opened under.
func (w *Workbook) Filename() string {
	return w.filename
}

// SheetPartPath resolves a sheet name to its part name inside the
// archive, following the manifest's relationship id to the relationship
// part's target.
func (w *Workbook) SheetPartPath(sheetName string) (string, error) {
	i, ok := w.sheetIndex[sheetName]
	if !ok {
		return "", &SheetNotFoundError{Name: sheetName}
	}
	meta := w.sheets[i]
	if meta.RelID == "" {
		return "", &RelationshipMissingError{Sheet: sheetName, RelID: meta.RelID}
	}
	target := w.relTargets[meta.RelID]
	if target == "" {
		return "", &RelationshipMissingError{Sheet: sheetName, RelID: meta.RelID}
	}
	return resolvePartTarget(target), nil
}

// resolvePartTarget maps a relationship target to a part name. Targets
// are relative to the workbook part's directory unless they start with a
// slash, which addresses the package root.
func resolvePartTarget(target string) string {
	if strings.HasPrefix(target, "/") {
		return path.Clean(strings.TrimPrefix(target, "/"))
	}
	return path.Join(partRoot, target)
}

// parseManifest reads the sheet list out of the workbook part.
func parseManifest(data []byte) []SheetMeta {
	sc := NewScanner(data)
	var sheets []SheetMeta
	inSheets := false
	for {
		tok, ok := sc.Next()
		if !ok {
			return sheets
		}
		switch {
		case tok.Is(TokenStart, "sheets"):
			inSheets = !tok.SelfClosing
		case tok.Is(TokenEnd, "sheets"):
			return sheets
		case inSheets && tok.Is(TokenStart, "sheet"):
			name, _ := tok.Attr("name")
			sheetID, _ := tok.Attr("sheetId")
			relID, _ := tok.Attr("id")
			sheets = append(sheets, SheetMeta{Name: name, SheetID: sheetID, RelID: relID})
		}
	}
}

// parseRelationships reads the id to target mapping out of a
// relationship part.
func parseRelationships(data []byte) map[string]string {
	sc := NewScanner(data)
	targets := map[string]string{}
	for {
		tok, ok := sc.Next()
		if !ok {
			return targets
		}
		if !tok.Is(TokenStart, "Relationship") {
			continue
		}
		id, _ := tok.Attr("Id")
		target, _ := tok.Attr("Target")
		if id != "" {
			targets[id] = target
		}
	}
}
