package xlsxrd

import (
	"bytes"
	"strconv"
	"strings"
)

// The workbook, relationship, shared-string and sheet parts are produced by
// a small set of writers with a predictable attribute vocabulary, so they
// are decoded with a byte-oriented tag scanner rather than a full XML
// parser. The scanner matches tag and attribute names by local name (any
// namespace prefix is ignored), surfaces CDATA content verbatim, and skips
// processing instructions, comments and doctype declarations. Malformed
// trailing markup ends the token stream instead of failing.

// TokenKind classifies a scanner token.
type TokenKind int

const (
	// TokenStart is an opening or self-closing tag.
	TokenStart TokenKind = iota
	// TokenEnd is a closing tag.
	TokenEnd
	// TokenText is character data between tags. The text is raw; callers
	// decode entities with Unescape when they care about the content.
	TokenText
)

// Attr is one attribute of a start tag. Values are entity-decoded.
type Attr struct {
	Name  string
	Value string
}

// Token is one event produced by Scanner.Next.
type Token struct {
	Kind        TokenKind
	Name        string // tag name as written, any prefix included
	Attrs       []Attr // start tags only
	Text        string // TokenText only
	SelfClosing bool   // start tags only
}

// Attr returns the value of the attribute with the given local name.
// A prefixed attribute such as r:id matches the local name id.
func (t *Token) Attr(name string) (string, bool) {
	for _, a := range t.Attrs {
		if a.Name == name || localName(a.Name) == name {
			return a.Value, true
		}
	}
	return "", false
}

// Is reports whether the token is the given kind with the given local name.
func (t *Token) Is(kind TokenKind, name string) bool {
	return t.Kind == kind && localName(t.Name) == name
}

// Scanner is a forward-only tokenizer over one part's bytes.
type Scanner struct {
	src []byte
	pos int
}

// NewScanner returns a Scanner positioned at the start of src.
func NewScanner(src []byte) *Scanner {
	return &Scanner{src: src}
}

var (
	cdataOpen   = []byte("<![CDATA[")
	commentOpen = []byte("<!--")
)

// Next returns the next token. The second result is false once the input
// is exhausted.
func (s *Scanner) Next() (Token, bool) {
	for s.pos < len(s.src) {
		if s.src[s.pos] != '<' {
			start := s.pos
			for s.pos < len(s.src) && s.src[s.pos] != '<' {
				s.pos++
			}
			return Token{Kind: TokenText, Text: string(s.src[start:s.pos])}, true
		}
		if s.pos+1 >= len(s.src) {
			s.pos = len(s.src)
			break
		}
		switch s.src[s.pos+1] {
		case '?':
			s.skipPast("?>")
		case '!':
			if bytes.HasPrefix(s.src[s.pos:], cdataOpen) {
				return s.scanCDATA()
			}
			if bytes.HasPrefix(s.src[s.pos:], commentOpen) {
				s.skipPast("-->")
			} else {
				s.skipPast(">")
			}
		case '/':
			return s.scanEndTag()
		default:
			return s.scanStartTag()
		}
	}
	return Token{}, false
}

// skipPast advances beyond the next occurrence of marker, or to the end of
// the input when the marker never closes.
func (s *Scanner) skipPast(marker string) {
	i := bytes.Index(s.src[s.pos:], []byte(marker))
	if i < 0 {
		s.pos = len(s.src)
		return
	}
	s.pos += i + len(marker)
}

func (s *Scanner) scanCDATA() (Token, bool) {
	s.pos += len(cdataOpen)
	i := bytes.Index(s.src[s.pos:], []byte("]]>"))
	if i < 0 {
		text := string(s.src[s.pos:])
		s.pos = len(s.src)
		return Token{Kind: TokenText, Text: text}, true
	}
	text := string(s.src[s.pos : s.pos+i])
	s.pos += i + 3
	return Token{Kind: TokenText, Text: text}, true
}

func (s *Scanner) scanEndTag() (Token, bool) {
	s.pos += 2
	name := s.readName()
	s.skipPast(">")
	if name == "" {
		return Token{}, false
	}
	return Token{Kind: TokenEnd, Name: name}, true
}

func (s *Scanner) scanStartTag() (Token, bool) {
	s.pos++
	tok := Token{Kind: TokenStart, Name: s.readName()}
	if tok.Name == "" {
		s.skipPast(">")
		return Token{}, false
	}
	for s.pos < len(s.src) {
		s.skipSpace()
		if s.pos >= len(s.src) {
			break
		}
		switch s.src[s.pos] {
		case '>':
			s.pos++
			return tok, true
		case '/':
			tok.SelfClosing = true
			s.skipPast(">")
			return tok, true
		default:
			name := s.readName()
			if name == "" {
				// Unparseable byte inside a tag; step over it so the
				// scan always terminates.
				s.pos++
				continue
			}
			tok.Attrs = append(tok.Attrs, Attr{Name: name, Value: Unescape(s.readAttrValue())})
		}
	}
	return tok, true
}

// readName consumes a tag or attribute name starting at the current
// position. Returns "" when the position does not start a name.
func (s *Scanner) readName() string {
	start := s.pos
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case ' ', '\t', '\r', '\n', '=', '/', '>', '<', '"', '\'':
			return string(s.src[start:s.pos])
		}
		s.pos++
	}
	return string(s.src[start:s.pos])
}

// readAttrValue consumes an optional ="value" following an attribute name.
// A bare attribute yields the empty string. Unquoted values run to the next
// space or tag close.
func (s *Scanner) readAttrValue() string {
	s.skipSpace()
	if s.pos >= len(s.src) || s.src[s.pos] != '=' {
		return ""
	}
	s.pos++
	s.skipSpace()
	if s.pos >= len(s.src) {
		return ""
	}
	if q := s.src[s.pos]; q == '"' || q == '\'' {
		s.pos++
		start := s.pos
		for s.pos < len(s.src) && s.src[s.pos] != q && s.src[s.pos] != '<' {
			s.pos++
		}
		val := string(s.src[start:s.pos])
		if s.pos < len(s.src) && s.src[s.pos] == q {
			s.pos++
		}
		return val
	}
	start := s.pos
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case ' ', '\t', '\r', '\n', '>', '/':
			return string(s.src[start:s.pos])
		}
		s.pos++
	}
	return string(s.src[start:s.pos])
}

func (s *Scanner) skipSpace() {
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case ' ', '\t', '\r', '\n':
			s.pos++
		default:
			return
		}
	}
}

// textUntil consumes tokens up to the closing tag with the given local name
// and returns the concatenated raw text seen on the way. Nested tags are
// skipped. Used for simple containers such as the cell value element.
func (s *Scanner) textUntil(close string) string {
	var b strings.Builder
	for {
		tok, ok := s.Next()
		if !ok {
			break
		}
		if tok.Kind == TokenText {
			b.WriteString(tok.Text)
			continue
		}
		if tok.Is(TokenEnd, close) {
			break
		}
	}
	return b.String()
}

const maxEntityLen = 10

// Unescape decodes XML character entities: the named set (amp, lt, gt,
// quot, apos) and numeric references in decimal and hexadecimal form.
// Anything that does not parse as an entity is passed through literally.
func Unescape(s string) string {
	amp := strings.IndexByte(s, '&')
	if amp < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(s[:amp])
	for i := amp; i < len(s); {
		if s[i] != '&' {
			b.WriteByte(s[i])
			i++
			continue
		}
		semi := strings.IndexByte(s[i:], ';')
		if semi <= 1 || semi > maxEntityLen {
			b.WriteByte('&')
			i++
			continue
		}
		if rep, ok := resolveEntity(s[i+1 : i+semi]); ok {
			b.WriteString(rep)
			i += semi + 1
		} else {
			b.WriteByte('&')
			i++
		}
	}
	return b.String()
}

func resolveEntity(ent string) (string, bool) {
	switch ent {
	case "amp":
		return "&", true
	case "lt":
		return "<", true
	case "gt":
		return ">", true
	case "quot":
		return `"`, true
	case "apos":
		return "'", true
	}
	if len(ent) < 2 || ent[0] != '#' {
		return "", false
	}
	digits, base := ent[1:], 10
	if digits[0] == 'x' || digits[0] == 'X' {
		digits, base = digits[1:], 16
	}
	n, err := strconv.ParseUint(digits, base, 32)
	if err != nil {
		return "", false
	}
	r := rune(n)
	if n == 0 || n > 0x10FFFF || (r >= 0xD800 && r <= 0xDFFF) {
		return "", false
	}
	return string(r), true
}

func localName(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}
