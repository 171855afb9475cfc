package xlsxrd

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CellKind identifies the decoded type of a cell.
type CellKind int

const (
	// CellEmpty is a cell with no usable value.
	CellEmpty CellKind = iota
	// CellText holds a string, whether shared, inline or a formula result.
	CellText
	// CellNumber holds a floating-point value. Dates are numbers too;
	// serials are recognized downstream, not here.
	CellNumber
	// CellBoolean holds a true/false value.
	CellBoolean
)

func (k CellKind) String() string {
	switch k {
	case CellEmpty:
		return "empty"
	case CellText:
		return "text"
	case CellNumber:
		return "number"
	case CellBoolean:
		return "boolean"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// CellValue is one decoded cell. Kind selects which of the payload
// fields carries the value.
type CellValue struct {
	Kind   CellKind
	Text   string
	Number float64
	IsInt  bool
	Bool   bool
}

// EmptyValue returns the empty cell value.
func EmptyValue() CellValue {
	return CellValue{Kind: CellEmpty}
}

// TextValue returns a text cell holding s.
func TextValue(s string) CellValue {
	return CellValue{Kind: CellText, Text: s}
}

// NumberValue returns a numeric cell. IsInt is set when the value is a
// whole number small enough to round-trip through int64, which selects
// the undecorated display form.
func NumberValue(f float64) CellValue {
	return CellValue{
		Kind:   CellNumber,
		Number: f,
		IsInt:  f == math.Trunc(f) && math.Abs(f) < 1<<53,
	}
}

// BoolValue returns a boolean cell.
func BoolValue(b bool) CellValue {
	return CellValue{Kind: CellBoolean, Bool: b}
}

// IsEmpty reports whether the cell carries no value. Text cells holding
// the empty string count as empty for record filtering.
func (v CellValue) IsEmpty() bool {
	return v.Kind == CellEmpty || (v.Kind == CellText && v.Text == "")
}

// String renders the cell the way a sheet displays it under the general
// format: text verbatim, whole numbers without a decimal point, booleans
// as TRUE or FALSE, empty cells as the empty string.
func (v CellValue) String() string {
	switch v.Kind {
	case CellText:
		return v.Text
	case CellNumber:
		if v.IsInt {
			return strconv.FormatInt(int64(v.Number), 10)
		}
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case CellBoolean:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ""
	}
}

// MarshalJSON emits the natural JSON form: null, string, number or bool.
func (v CellValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case CellText:
		return json.Marshal(v.Text)
	case CellNumber:
		if v.IsInt {
			return json.Marshal(int64(v.Number))
		}
		return json.Marshal(v.Number)
	case CellBoolean:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// coerceCell turns one parsed cell element into a CellValue. typ is the
// cell's t attribute, raw the undecoded text of its value element, inline
// the already-decoded inline string. The zero t attribute means numeric.
//
// Recoverable oddities degrade instead of failing: a shared-string index
// outside the table becomes empty text, a numeric cell whose value does
// not parse keeps the text as written.
func coerceCell(typ, raw string, hasValue bool, inline string, hasInline bool, shared []string) CellValue {
	switch typ {
	case "inlineStr":
		if !hasInline {
			return EmptyValue()
		}
		return TextValue(inline)
	case "s":
		if !hasValue {
			return EmptyValue()
		}
		idx, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || idx < 0 || idx >= len(shared) {
			return TextValue("")
		}
		return TextValue(shared[idx])
	case "b":
		if !hasValue {
			return EmptyValue()
		}
		return BoolValue(strings.TrimSpace(raw) == "1")
	case "str", "e":
		if !hasValue {
			return EmptyValue()
		}
		return TextValue(Unescape(raw))
	default:
		if !hasValue {
			return EmptyValue()
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return TextValue(Unescape(raw))
		}
		return NumberValue(f)
	}
}
