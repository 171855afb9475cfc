package xlsxrd

import (
	"bytes"
	"os"
	"strings"
)

// FileFormatDescriptions provides descriptions of the file types that can be inspected.
var FileFormatDescriptions = map[string]string{
	"xls":  "Excel xls",
	"xlsb": "Excel 2007 xlsb file",
	"xlsx": "Excel xlsx file",
	"ods":  "Openoffice.org ODS file",
	"zip":  "Unknown ZIP file",
	"":     "Unknown file type",
}

// XLS_SIGNATURE is the magic cookie that should appear in the first 8 bytes of an XLS file.
var XLS_SIGNATURE = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// ZIP_SIGNATURE is the magic cookie for ZIP files.
var ZIP_SIGNATURE = []byte("PK\x03\x04")

// PEEK_SIZE is the maximum size needed to peek at file signatures.
const PEEK_SIZE = 8

// InspectFormat inspects the content at the supplied path or the bytes content provided
// and returns the file's type as a string, or empty string if it cannot be determined.
//
// path: A string path containing the content to inspect. ~ will be expanded.
// content: The bytes content to inspect.
//
// Returns: A string, or empty string if the format cannot be determined.
// The return value can always be looked up in FileFormatDescriptions
// to return a human-readable description of the format found.
func InspectFormat(path string, content []byte) (string, error) {
	if content == nil {
		expanded, err := expandUserPath(path)
		if err != nil {
			return "", err
		}
		content, err = os.ReadFile(expanded)
		if err != nil {
			return "", err
		}
	}

	if len(content) < PEEK_SIZE {
		return "", nil
	}

	if bytes.HasPrefix(content, XLS_SIGNATURE) {
		return "xls", nil
	}

	if !bytes.HasPrefix(content, ZIP_SIGNATURE) {
		return "", nil
	}

	archive, err := OpenArchive(content)
	if err != nil {
		return "", err
	}

	// Workaround for some third party files that use backslashes and
	// upper case names. We map each name in lowercase to check for the
	// expected components.
	componentNames := make(map[string]bool)
	for _, entry := range archive.Entries() {
		lowerName := strings.ToLower(strings.ReplaceAll(entry.Name, "\\", "/"))
		componentNames[lowerName] = true
	}

	if componentNames["xl/workbook.xml"] {
		return "xlsx", nil
	}
	if componentNames["xl/workbook.bin"] {
		return "xlsb", nil
	}
	if componentNames["content.xml"] {
		return "ods", nil
	}
	return "zip", nil
}

// expandUserPath expands a leading ~ to the user's home directory.
func expandUserPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return strings.Replace(path, "~", homeDir, 1), nil
}
