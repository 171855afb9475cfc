package xlsxrd

import "strings"

// The shared-string part is a flat list of <si> items referenced from
// sheet cells by position. An item is either a single <t> element or a
// sequence of formatting runs whose <t> contents concatenate to the
// visible string. Phonetic <rPh> blocks carry furigana annotations, not
// cell content, and are dropped.

// parseSharedStrings decodes the shared-string part into its item list.
// The part is trusted as far as it goes; a truncated part yields the
// items seen before the end.
func parseSharedStrings(data []byte) []string {
	sc := NewScanner(data)
	var table []string
	for {
		tok, ok := sc.Next()
		if !ok {
			return table
		}
		if tok.Kind != TokenStart {
			continue
		}
		switch localName(tok.Name) {
		case "sst":
			if table == nil {
				table = make([]string, 0, itemCountHint(&tok))
			}
		case "si":
			if tok.SelfClosing {
				table = append(table, "")
				continue
			}
			table = append(table, collectRuns(sc, "si"))
		}
	}
}

// itemCountHint sizes the table from the uniqueCount attribute. The
// attribute is advisory, so the hint is capped.
func itemCountHint(tok *Token) int {
	const maxHint = 1 << 20
	n, ok := tok.Attr("uniqueCount")
	if !ok {
		return 0
	}
	c := 0
	for i := 0; i < len(n); i++ {
		d := n[i]
		if d < '0' || d > '9' {
			return 0
		}
		c = c*10 + int(d-'0')
		if c > maxHint {
			return maxHint
		}
	}
	return c
}

// collectRuns consumes tokens up to the end tag with local name close,
// concatenating the entity-decoded contents of every <t> element on the
// way and skipping phonetic <rPh> blocks. Both shared-string items and
// inline cell strings have this shape.
func collectRuns(sc *Scanner, close string) string {
	var b strings.Builder
	for {
		tok, ok := sc.Next()
		if !ok {
			return b.String()
		}
		switch {
		case tok.Is(TokenStart, "t"):
			if !tok.SelfClosing {
				b.WriteString(Unescape(sc.textUntil("t")))
			}
		case tok.Is(TokenStart, "rPh"):
			if !tok.SelfClosing {
				skipElement(sc, "rPh")
			}
		case tok.Is(TokenEnd, close):
			return b.String()
		}
	}
}

// skipElement discards tokens through the end tag with local name close.
func skipElement(sc *Scanner, close string) {
	for {
		tok, ok := sc.Next()
		if !ok || tok.Is(TokenEnd, close) {
			return
		}
	}
}
