package splitter

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// nonBreakingTags are never split across chunks even when oversized: cutting
// inside them produces markup that no longer renders as the same element.
var nonBreakingTags = map[string]bool{
	"a": true, "img": true, "ul": true, "ol": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"b": true, "i": true, "em": true, "strong": true, "code": true,
}

// HTMLSplitter recursively splits markup along element boundaries so that the
// concatenation of all chunks reproduces the canonical serialization of the
// input byte for byte.
type HTMLSplitter struct {
	chunkSize int
	length    LenFunc
}

func NewHTMLSplitter(chunkSize int, opts ...Option) (*HTMLSplitter, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size %d: must be >= 1", chunkSize)
	}
	o := options{length: RuneLen}
	for _, opt := range opts {
		opt(&o)
	}
	return &HTMLSplitter{chunkSize: chunkSize, length: o.length}, nil
}

// Split parses text as a body fragment, splits each top-level node, then
// re-packs sibling fragments up to the chunk size with no separator and no
// overlap: overlap would duplicate markup and break reconstruction.
func (s *HTMLSplitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(text), body)
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	var fragments []string
	for _, n := range nodes {
		frags, err := s.splitNode(n)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, frags...)
	}
	return MergeUnits(fragments, "", s.chunkSize, 0, s.length), nil
}

// splitNode returns the fragments for one node. A node small enough, marked
// non-breaking, or a comment is emitted whole. Otherwise the serialized
// opening and closing tags are peeled off by locating the children substring
// inside the serialized parent, and each child is split recursively.
func (s *HTMLSplitter) splitNode(n *html.Node) ([]string, error) {
	rendered, err := render(n)
	if err != nil {
		return nil, err
	}
	if rendered == "" {
		return nil, nil
	}
	if s.length(rendered) <= s.chunkSize || n.Type == html.CommentNode || nonBreakingTags[n.Data] {
		return []string{rendered}, nil
	}
	if n.FirstChild == nil {
		// Oversized leaf (e.g. a huge text node): overflow is allowed,
		// never truncated.
		return []string{rendered}, nil
	}

	var children strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rc, err := render(c)
		if err != nil {
			return nil, err
		}
		children.WriteString(rc)
	}
	inner := children.String()
	if inner == "" {
		return []string{rendered}, nil
	}
	if strings.Count(rendered, inner) != 1 {
		return nil, fmt.Errorf("markup node <%s>: children substring not found exactly once in parent", n.Data)
	}

	idx := strings.Index(rendered, inner)
	opening := rendered[:idx]
	closing := rendered[idx+len(inner):]

	fragments := []string{opening}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		frags, err := s.splitNode(c)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, frags...)
	}
	if closing != "" {
		fragments = append(fragments, closing)
	}
	return fragments, nil
}

func render(n *html.Node) (string, error) {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return "", fmt.Errorf("render markup: %w", err)
	}
	return b.String(), nil
}
