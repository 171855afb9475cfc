package xlsxrd

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseSharedStrings(t *testing.T) {
	tests := []struct {
		name string
		part string
		want []string
	}{
		{
			"plain items",
			`<sst count="2" uniqueCount="2"><si><t>alpha</t></si><si><t>bravo</t></si></sst>`,
			[]string{"alpha", "bravo"},
		},
		{
			"formatting runs concatenate",
			`<sst><si><r><rPr><b/></rPr><t>Rich </t></r><r><t>run</t></r></si></sst>`,
			[]string{"Rich run"},
		},
		{
			"phonetic annotations dropped",
			`<sst><si><rPh sb="0" eb="2"><t>トウキョウ</t></rPh><t>東京</t></si></sst>`,
			[]string{"東京"},
		},
		{
			"space preserved",
			`<sst><si><t xml:space="preserve"> padded </t></si></sst>`,
			[]string{" padded "},
		},
		{
			"entities decoded",
			`<sst><si><t>a &amp; b &lt;c&gt;</t></si></sst>`,
			[]string{"a & b <c>"},
		},
		{
			"empty items",
			`<sst><si/><si><t/></si><si><t></t></si></sst>`,
			[]string{"", "", ""},
		},
		{
			"namespace prefixes",
			`<x:sst><x:si><x:t>prefixed</x:t></x:si></x:sst>`,
			[]string{"prefixed"},
		},
		{
			"truncated part keeps what was read",
			`<sst><si><t>kept</t></si><si><t>half`,
			[]string{"kept", "half"},
		},
		{
			"empty part",
			``,
			nil,
		},
	}
	for _, tt := range tests {
		got := parseSharedStrings([]byte(tt.part))
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s: parseSharedStrings mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestItemCountHint(t *testing.T) {
	tests := []struct {
		attr string
		want int
	}{
		{`<sst uniqueCount="12">`, 12},
		{`<sst uniqueCount="0">`, 0},
		{`<sst uniqueCount="huge">`, 0},
		{`<sst>`, 0},
		{`<sst uniqueCount="99999999999">`, 1 << 20},
	}
	for _, tt := range tests {
		sc := NewScanner([]byte(tt.attr))
		tok, ok := sc.Next()
		if !ok {
			t.Fatalf("no token from %q", tt.attr)
		}
		if got := itemCountHint(&tok); got != tt.want {
			t.Errorf("itemCountHint(%q) = %d, want %d", tt.attr, got, tt.want)
		}
	}
}
