package sources

import "testing"

func TestExtractWhitespace(t *testing.T) {
	cases := []struct {
		line          string
		index         int
		key, value    string
	}{
		{"hello world", 1, "hello", "world"},
		{"hello world today", 2, "hello world", "today"},
		{"hello    world", 1, "hello", "world"},
		{"hello  world    today", 2, "hello  world", "today"},
		{"  hello world", 1, "", "hello world"},
		{"  hello world", 2, "  hello", "world"},
		{"  hello world  ", 2, "  hello", "world  "},
		{"  hello", 2, "  hello", ""},
		{"  hello  ", 2, "  hello", ""},
		{"", 2, "", ""},
		{"", 1, "", ""},
	}
	for _, c := range cases {
		k, v := extractWhitespace(c.index, c.line)
		if k != c.key || v != c.value {
			t.Errorf("extractWhitespace(%d, %q) = (%q, %q), want (%q, %q)", c.index, c.line, k, v, c.key, c.value)
		}
	}
}

func TestExtractPattern(t *testing.T) {
	cases := []struct {
		line, pattern string
		index         int
		key, value    string
	}{
		{"hello world", " ", 1, "hello", "world"},
		{"hello world today", " ", 1, "hello", "world today"},
		{"hello  world", " ", 1, "hello", " world"},
		{"hello world today", " ", 2, "hello world", "today"},
		{"hello  world", " ", 2, "hello ", "world"},
		{"hello world", "o", 2, "hello w", "rld"},
		{"hello world", "or", 1, "hello w", "ld"},
		{" hello world", " ", 1, "", "hello world"},
		{"  hello world", " ", 1, "", " hello world"},
		{"  hello world", " ", 2, " ", "hello world"},
	}
	for _, c := range cases {
		k, v := extractPattern(c.pattern, c.index, c.line)
		if k != c.key || v != c.value {
			t.Errorf("extractPattern(%q, %d, %q) = (%q, %q), want (%q, %q)", c.pattern, c.index, c.line, k, v, c.key, c.value)
		}
	}
}

func TestAllWhitespace(t *testing.T) {
	if !allWhitespace("   \t  ") {
		t.Fatal("expected all-whitespace line to be recognized")
	}
	if allWhitespace("  x ") {
		t.Fatal("did not expect non-whitespace line to be recognized as blank")
	}
}

func TestRemoveCommentsPrefix(t *testing.T) {
	config := DefaultFlatConfig().WithCommentChar("#")
	got, ok := removeComments(config, "# a full comment line")
	if ok {
		t.Fatalf("removeComments(prefix comment) = (%q, %v), want ok=false (blank after stripping)", got, ok)
	}
}

func TestRemoveCommentsInline(t *testing.T) {
	config := DefaultFlatConfig().WithCommentChar("#").WithInlineComments(true)
	got, ok := removeComments(config, "key value # trailing comment")
	if !ok {
		t.Fatal("expected line to survive")
	}
	if got != "key value" {
		t.Fatalf("removeComments(inline) = %q, want %q", got, "key value")
	}
}

func TestRemoveCommentsNotInlineKeepsMarker(t *testing.T) {
	config := DefaultFlatConfig().WithCommentChar("#")
	got, ok := removeComments(config, "key#value")
	if !ok {
		t.Fatal("expected line to survive")
	}
	if got != "key#value" {
		t.Fatalf("removeComments(non-prefix, non-inline) = %q, want unchanged", got)
	}
}

func TestRemoveCommentsSkipBlank(t *testing.T) {
	config := DefaultFlatConfig()
	if _, ok := removeComments(config, "   "); ok {
		t.Fatal("expected blank line to be skipped")
	}
	config2 := config.WithSkipBlank(false)
	if _, ok := removeComments(config2, "   "); !ok {
		t.Fatal("expected blank line to survive when skipBlank is false")
	}
}

func TestMemorySourceRoundTrip(t *testing.T) {
	data := map[string][]byte{
		"a": []byte("1"),
		"b": []byte("22"),
		"c": []byte("333"),
	}
	src := NewMemorySource(data)
	it, err := src.Iter()
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]string{}
	for {
		k, v, ok, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got[string(k)] = string(v)
	}
	for k, v := range data {
		if got[k] != string(v) {
			t.Fatalf("missing or mismatched key %q", k)
		}
	}
}
