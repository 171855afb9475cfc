package reconcile

import (
	"encoding/csv"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/yamitzky/xlsxrd-go/xlsxrd"
)

// WriteCSV writes the merged rows in header order, header line first.
func WriteCSV(w io.Writer, result *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(result.Headers); err != nil {
		return errors.Wrap(err, "write header")
	}
	row := make([]string, len(result.Headers))
	for _, rec := range result.Rows {
		for i, h := range result.Headers {
			row[i] = rec[h].String()
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "write row")
		}
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

// WriteJSON writes the merged rows as a JSON array of objects. Cell
// values take their natural JSON form; empty cells are null.
func WriteJSON(w io.Writer, result *Result, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	rows := result.Rows
	if rows == nil {
		rows = []xlsxrd.Record{}
	}
	return errors.WithStack(enc.Encode(rows))
}
