// Package splitter turns source documents into size-bounded text chunks.
//
// Every splitter is stateless: Split can be called any number of times and
// always produces the same finite chunk sequence for the same input. Chunk
// sizes are measured by a pluggable LenFunc so callers can count tokens
// instead of runes.
package splitter

import "strings"

// LenFunc measures the size of a unit of text. The default counts runes.
type LenFunc func(string) int

// RuneLen is the default length function.
func RuneLen(s string) int { return len([]rune(s)) }

// Splitter splits text into an ordered sequence of chunks.
type Splitter interface {
	Split(text string) ([]string, error)
}

// Chunk is a bounded fragment of a larger document. Ordinals record the
// original order so callers can reassemble documents after retrieval.
type Chunk struct {
	Text      string
	Ordinal   uint
	SourceRef string
}

// Chunks wraps split output into ordered Chunks for a source document.
func Chunks(sourceRef string, texts []string) []Chunk {
	out := make([]Chunk, len(texts))
	for i, t := range texts {
		out[i] = Chunk{Text: t, Ordinal: uint(i), SourceRef: sourceRef}
	}
	return out
}

// MergeUnits greedily packs atomic units into chunks of at most chunkSize,
// joining units with sep and carrying up to chunkOverlap of trailing context
// into the next chunk.
//
// Before a unit is appended, if the running buffer would exceed chunkSize the
// buffer is flushed as one chunk and units are popped off the front until the
// retained overlap is at most chunkOverlap and the incoming unit fits (or the
// buffer is empty). A single
// unit larger than chunkSize becomes its own oversized chunk; nothing is ever
// truncated. Empty input yields no chunks.
func MergeUnits(units []string, sep string, chunkSize, chunkOverlap int, length LenFunc) []string {
	if length == nil {
		length = RuneLen
	}
	sepLen := length(sep)

	var chunks []string
	var buf []string
	bufLen := 0 // joined length of buf, separators included

	for _, unit := range units {
		unitLen := length(unit)
		if len(buf) > 0 && bufLen+unitLen+sepLen > chunkSize {
			chunks = append(chunks, strings.Join(buf, sep))
			for len(buf) > 0 && (bufLen > chunkOverlap || bufLen+unitLen+sepLen > chunkSize) {
				bufLen -= length(buf[0])
				if len(buf) > 1 {
					bufLen -= sepLen
				}
				buf = buf[1:]
			}
		}
		buf = append(buf, unit)
		bufLen += unitLen
		if len(buf) > 1 {
			bufLen += sepLen
		}
	}
	if len(buf) > 0 {
		chunks = append(chunks, strings.Join(buf, sep))
	}
	return chunks
}
