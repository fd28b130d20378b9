package sources

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/theflywheel/ncd"
)

// FlatConfig controls how FlatSource splits each line into a key and a
// value.
type FlatConfig struct {
	index          int     // 1-based: which separator occurrence splits the line
	separator      *string // nil means "split on the Nth whitespace run"
	skipBlank      bool
	commentChar    *string
	inlineComments bool
	trimTail       bool
}

// DefaultFlatConfig matches the reference implementation's flat source
// defaults: split on the first whitespace run, skip blank lines, trim
// trailing whitespace, no comment handling.
func DefaultFlatConfig() FlatConfig {
	return FlatConfig{index: 1, skipBlank: true, trimTail: true}
}

func (c FlatConfig) WithIndex(v int) FlatConfig { c.index = v; return c }
func (c FlatConfig) WithSeparator(v string) FlatConfig {
	c.separator = &v
	return c
}
func (c FlatConfig) WithSkipBlank(v bool) FlatConfig { c.skipBlank = v; return c }
func (c FlatConfig) WithCommentChar(v string) FlatConfig {
	c.commentChar = &v
	return c
}
func (c FlatConfig) WithInlineComments(v bool) FlatConfig { c.inlineComments = v; return c }
func (c FlatConfig) WithTrimTail(v bool) FlatConfig       { c.trimTail = v; return c }

// FlatSource is a ValueSource over a line-oriented text file: one (key,
// value) pair per line, separated by whitespace or a literal pattern, with
// optional comment stripping and blank-line skipping.
type FlatSource struct {
	path   string
	config FlatConfig
}

// NewFlatSource wraps path as a ValueSource using config.
func NewFlatSource(path string, config FlatConfig) *FlatSource {
	return &FlatSource{path: path, config: config}
}

// Iter opens the file fresh and returns a line-scanning iterator.
func (s *FlatSource) Iter() (ncd.ValueIterator, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("sources: open %s: %w", s.path, err)
	}
	return &flatIterator{file: f, scanner: bufio.NewScanner(f), config: s.config}, nil
}

type flatIterator struct {
	file    *os.File
	scanner *bufio.Scanner
	config  FlatConfig
}

func (it *flatIterator) Next() ([]byte, []byte, bool, error) {
	for it.scanner.Scan() {
		line, ok := removeComments(it.config, it.scanner.Text())
		if !ok {
			continue
		}
		key, value := splitLine(it.config, line)
		return []byte(key), []byte(value), true, nil
	}
	if err := it.scanner.Err(); err != nil {
		it.file.Close()
		return nil, nil, false, fmt.Errorf("sources: scan: %w", err)
	}
	it.file.Close()
	return nil, nil, false, nil
}

// removeComments strips everything from the first comment marker onward —
// only when the marker is a pure line prefix (after optional leading
// whitespace) or when inline comments are enabled — then optionally trims
// trailing whitespace, then reports whether the line survives (blank lines
// are dropped when skipBlank is set).
func removeComments(config FlatConfig, line string) (string, bool) {
	out := line
	if config.commentChar != nil {
		marker := *config.commentChar
		if idx := strings.Index(out, marker); idx >= 0 {
			prefix := out[:idx]
			if config.inlineComments || allWhitespace(prefix) {
				out = out[:idx]
			}
		}
	}
	if config.trimTail {
		out = strings.TrimRightFunc(out, unicode.IsSpace)
	}
	if config.skipBlank && allWhitespace(out) {
		return "", false
	}
	return out, true
}

func splitLine(config FlatConfig, line string) (string, string) {
	if config.separator != nil {
		return extractPattern(*config.separator, config.index, line)
	}
	return extractWhitespace(config.index, line)
}

// extractPattern splits line at the index-th (1-based) occurrence of
// pattern. If pattern does not occur index times, the whole line is the
// key and the value is empty.
func extractPattern(pattern string, index int, line string) (string, string) {
	if pattern == "" {
		return line, ""
	}
	count := 0
	searchFrom := 0
	for {
		rel := strings.Index(line[searchFrom:], pattern)
		if rel < 0 {
			return line, ""
		}
		start := searchFrom + rel
		count++
		if count == index {
			end := start + len(pattern)
			return line[:start], line[end:]
		}
		searchFrom = start + len(pattern)
	}
}

// extractWhitespace splits line at the index-th (1-based) run of
// whitespace characters, consuming that run as the separator.
func extractWhitespace(index int, line string) (string, string) {
	var key, value strings.Builder
	target := &key
	sepCount := 0
	inSep := false
	for _, c := range line {
		if unicode.IsSpace(c) {
			if !inSep {
				sepCount++
				inSep = true
			}
			if sepCount == index {
				target = &value
				continue
			}
		} else {
			inSep = false
		}
		target.WriteRune(c)
	}
	return key.String(), value.String()
}

func allWhitespace(s string) bool {
	for _, c := range s {
		if !unicode.IsSpace(c) {
			return false
		}
	}
	return true
}
