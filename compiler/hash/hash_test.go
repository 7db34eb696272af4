package hash

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "x = 1", "x = 1"},
		{"crlf", "x = 1\r\ny = 2\r\n", "x = 1\ny = 2"},
		{"lone cr kept", "x = 1\ry = 2", "x = 1\ry = 2"},
		{"cr in literal kept", "s = 'a\rb'\r\n", "s = 'a\rb'"},
		{"trailing spaces", "x = 1   \ny = 2\t", "x = 1\ny = 2"},
		{"trailing blank lines", "x = 1\n\n  \n\t\n", "x = 1"},
		{"leading blank lines kept", "\n\nx = 1", "\n\nx = 1"},
		{"indentation kept", "if a then\n    b = 1\nend", "if a then\n    b = 1\nend"},
		{"inner blank lines kept", "a = 1\n\n\nb = 2", "a = 1\n\n\nb = 2"},
		{"nfc outside literals", "x = 1 # cafe\u0301", "x = 1 # caf\u00e9"},
		{"nfc skips literals", "s = 'cafe\u0301' + \"e\u0301\"", "s = 'cafe\u0301' + \"e\u0301\""},
		{"nfc after literal", "s = 'e\u0301' # e\u0301", "s = 'e\u0301' # \u00e9"},
		{"escaped quote in literal", "s = 'it\\'s e\u0301'", "s = 'it\\'s e\u0301'"},
		{"hash in literal", "s = '#e\u0301'", "s = '#e\u0301'"},
		{"only whitespace", " \n\t\r\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"x = 1\r\n\r\n",
		"  a = 'b'  \n  c = d\t\t\n\n",
		"é\r",
		"if x then\r\n\ty = 1 \r\nend\r\n",
		"s = 'e\u0301\r' # cafe\u0301 \r\n",
		"s = 'unterminated e\u0301",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
		if !IsNormal(once) {
			t.Errorf("IsNormal(%q) = false after Normalize", once)
		}
	}
}

func TestSourceKey(t *testing.T) {
	same := []string{
		"x = 1\ny = 2",
		"x = 1\r\ny = 2\r\n",
		"x = 1  \ny = 2\n\n\n",
	}
	want := SourceKey(same[0])
	for _, src := range same[1:] {
		if got := SourceKey(src); got != want {
			t.Errorf("SourceKey(%q) = %s, want %s", src, got.Short(), want.Short())
		}
	}

	different := []string{
		"x = 1\ny = 3",
		"  x = 1\ny = 2",
		"x = 1\n\ny = 2",
		"x = 1 # note\ny = 2",
		"x = 1\ry = 2",
	}
	for _, src := range different {
		if SourceKey(src) == want {
			t.Errorf("SourceKey(%q) collides with %q", src, same[0])
		}
	}
}

func TestSourceKeyKeepsLiterals(t *testing.T) {
	if SourceKey("s = 'caf\u00e9'") == SourceKey("s = 'cafe\u0301'") {
		t.Error("literals with different bytes share a key")
	}
	if SourceKey("x = 1 # caf\u00e9") != SourceKey("x = 1 # cafe\u0301") {
		t.Error("comments differing only in composition have different keys")
	}
}

func TestKeyEncoding(t *testing.T) {
	k := SourceKey("r = (4 + 8) / 2")
	s := k.String()
	if len(s) != 64 {
		t.Fatalf("Key.String() length = %d, want 64", len(s))
	}
	if k.Short() != s[:12] {
		t.Errorf("Short() = %q, want prefix of %q", k.Short(), s)
	}
	back, ok := ParseKey(s)
	if !ok || back != k {
		t.Errorf("ParseKey(%q) = %v, %v", s, back, ok)
	}
	if _, ok := ParseKey("zz"); ok {
		t.Error("ParseKey accepted invalid hex")
	}
	if _, ok := ParseKey("abcd"); ok {
		t.Error("ParseKey accepted a short key")
	}
}

func TestHashVersionIsPartOfKey(t *testing.T) {
	// Sum prefixes the version byte, so the key differs from a bare digest.
	k := Sum("")
	var zero Key
	if k == zero {
		t.Fatal("Sum(\"\") is zero")
	}
	if Sum("a") == Sum("b") {
		t.Error("distinct inputs share a key")
	}
}
