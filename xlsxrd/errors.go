package xlsxrd

import "fmt"

// ArchiveFormatError indicates that the buffer cannot be read as an archive
// at all: no end-of-central-directory record could be located. Nothing can
// be recovered from such a buffer.
type ArchiveFormatError struct {
	Reason string
}

func (e *ArchiveFormatError) Error() string {
	return fmt.Sprintf("invalid archive: %s", e.Reason)
}

// CentralDirectoryError indicates a corrupt central directory. The archive
// index is all-or-nothing, so a single bad entry poisons the whole open.
type CentralDirectoryError struct {
	Offset int
	Reason string
}

func (e *CentralDirectoryError) Error() string {
	return fmt.Sprintf("central directory at offset %d: %s", e.Offset, e.Reason)
}

// EntryNotFoundError indicates that a named member is absent from the
// archive index. Callers may recover by falling back to an alternate part.
type EntryNotFoundError struct {
	Name string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("no entry named <%s> in archive", e.Name)
}

// LocalHeaderError indicates a corrupt local file header for one entry.
type LocalHeaderError struct {
	Name   string
	Offset uint32
	Reason string
}

func (e *LocalHeaderError) Error() string {
	return fmt.Sprintf("local header for %q at offset %d: %s", e.Name, e.Offset, e.Reason)
}

// UnsupportedCompressionError indicates that an entry uses a compression
// method other than stored or deflate. Only that entry is unreadable.
type UnsupportedCompressionError struct {
	Name   string
	Method uint16
}

func (e *UnsupportedCompressionError) Error() string {
	return fmt.Sprintf("entry %q: unsupported compression method %d", e.Name, e.Method)
}

// SheetNotFoundError indicates that the workbook manifest declares no sheet
// with the requested display name.
type SheetNotFoundError struct {
	Name string
}

func (e *SheetNotFoundError) Error() string {
	return fmt.Sprintf("no sheet named <%s>", e.Name)
}

// RelationshipMissingError indicates that a sheet's relationship id has no
// target in the relationships part, so its part path cannot be resolved.
type RelationshipMissingError struct {
	Sheet string
	RelID string
}

func (e *RelationshipMissingError) Error() string {
	return fmt.Sprintf("sheet %q: relationship %q has no target", e.Sheet, e.RelID)
}
