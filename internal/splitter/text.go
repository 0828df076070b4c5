package splitter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// RegexSplitter splits text on a literal or regular-expression separator and
// re-merges the pieces with MergeUnits.
type RegexSplitter struct {
	chunkSize     int
	chunkOverlap  int
	separator     string
	isRegex       bool
	keepSeparator bool
	length        LenFunc
}

// Option configures a splitter.
type Option func(*options)

type options struct {
	keepSeparator bool
	isRegex       bool
	length        LenFunc
}

// WithRegexSeparator treats the separator as a regular expression.
func WithRegexSeparator() Option {
	return func(o *options) { o.isRegex = true }
}

// WithKeepSeparator retains the separator at the end of each unit instead of
// dropping it.
func WithKeepSeparator() Option {
	return func(o *options) { o.keepSeparator = true }
}

// WithLenFunc overrides the length function used for size accounting.
func WithLenFunc(f LenFunc) Option {
	return func(o *options) { o.length = f }
}

// NewRegexSplitter builds a line/regex splitter. chunkOverlap must be smaller
// than chunkSize.
func NewRegexSplitter(separator string, chunkSize, chunkOverlap int, opts ...Option) (*RegexSplitter, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size %d: must be >= 1", chunkSize)
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d >= chunk size %d", chunkOverlap, chunkSize)
	}
	o := options{length: RuneLen}
	for _, opt := range opts {
		opt(&o)
	}
	if o.isRegex {
		if _, err := regexp.Compile(separator); err != nil {
			return nil, fmt.Errorf("separator pattern: %w", err)
		}
	}
	return &RegexSplitter{
		chunkSize:     chunkSize,
		chunkOverlap:  chunkOverlap,
		separator:     separator,
		isRegex:       o.isRegex,
		keepSeparator: o.keepSeparator,
		length:        o.length,
	}, nil
}

func (s *RegexSplitter) Split(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	units := s.units(text)

	// When separators are kept inside the units, merging joins with the
	// empty string; otherwise the separator is reinserted at join time.
	joinSep := s.separator
	if s.keepSeparator || s.isRegex {
		joinSep = ""
	}
	return MergeUnits(units, joinSep, s.chunkSize, s.chunkOverlap, s.length), nil
}

func (s *RegexSplitter) units(text string) []string {
	if !s.isRegex {
		parts := strings.Split(text, s.separator)
		if !s.keepSeparator {
			return parts
		}
		for i := 0; i < len(parts)-1; i++ {
			parts[i] += s.separator
		}
		return parts
	}

	re := regexp.MustCompile(s.separator)
	matches := re.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	var units []string
	prev := 0
	for _, m := range matches {
		end := m[0]
		if s.keepSeparator {
			end = m[1]
		}
		if end > prev {
			units = append(units, text[prev:end])
		}
		prev = m[1]
	}
	if prev < len(text) {
		units = append(units, text[prev:])
	}
	return units
}

// RowSplitter formats tabular rows into "field: value" blocks and packs them
// into chunks. Rows are already bounded so no overlap is carried.
type RowSplitter struct {
	chunkSize int
	length    LenFunc
}

func NewRowSplitter(chunkSize int, opts ...Option) (*RowSplitter, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size %d: must be >= 1", chunkSize)
	}
	o := options{length: RuneLen}
	for _, opt := range opts {
		opt(&o)
	}
	return &RowSplitter{chunkSize: chunkSize, length: o.length}, nil
}

// SplitRows renders each row as one atomic block, keys in sorted order, and
// merges the blocks up to the chunk size.
func (s *RowSplitter) SplitRows(rows []map[string]string) ([]string, error) {
	units := make([]string, 0, len(rows))
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, row[k])
		}
		units = append(units, b.String())
	}
	return MergeUnits(units, "\n", s.chunkSize, 0, s.length), nil
}

// sentenceRE matches one sentence up to its terminating punctuation.
// Abbreviations are not special-cased.
var sentenceRE = regexp.MustCompile(`[^.!?]+[.!?]+[\s]*|[^.!?]+$`)

// SentenceSplitter splits text at sentence boundaries and merges sentences
// into chunks separated by paragraph breaks.
type SentenceSplitter struct {
	chunkSize    int
	chunkOverlap int
	length       LenFunc
}

func NewSentenceSplitter(chunkSize, chunkOverlap int, opts ...Option) (*SentenceSplitter, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size %d: must be >= 1", chunkSize)
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d >= chunk size %d", chunkOverlap, chunkSize)
	}
	o := options{length: RuneLen}
	for _, opt := range opts {
		opt(&o)
	}
	return &SentenceSplitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap, length: o.length}, nil
}

func (s *SentenceSplitter) Split(text string) ([]string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}
	raw := sentenceRE.FindAllString(trimmed, -1)
	units := make([]string, 0, len(raw))
	for _, sent := range raw {
		sent = strings.TrimSpace(sent)
		if sent != "" {
			units = append(units, sent)
		}
	}
	return MergeUnits(units, "\n\n", s.chunkSize, s.chunkOverlap, s.length), nil
}
