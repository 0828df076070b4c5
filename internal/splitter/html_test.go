package splitter

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// canonical returns the serialization the splitter reconstructs: the input
// parsed as a body fragment and re-rendered node by node.
func canonical(t *testing.T, markup string) string {
	t.Helper()
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		t.Fatal(err)
	}
	var b strings.Builder
	for _, n := range nodes {
		if err := html.Render(&b, n); err != nil {
			t.Fatal(err)
		}
	}
	return b.String()
}

func TestHTMLSplitterRoundTrip(t *testing.T) {
	markup := `<div><p>hello world from the first paragraph</p>` +
		`<p>and quite a bit more text in the second paragraph</p></div>` +
		`<p>a trailing sibling paragraph at the top level</p>`

	s, err := NewHTMLSplitter(40)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := s.Split(markup)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %q", chunks)
	}
	if got, want := strings.Join(chunks, ""), canonical(t, markup); got != want {
		t.Errorf("concatenated chunks = %q, want %q", got, want)
	}
}

func TestHTMLSplitterWholeWhenSmall(t *testing.T) {
	markup := `<p>tiny</p>`
	s, err := NewHTMLSplitter(100)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := s.Split(markup)
	if err != nil {
		t.Fatal(err)
	}
	assertChunks(t, chunks, []string{canonical(t, markup)})
}

func TestHTMLSplitterNonBreakingTag(t *testing.T) {
	// A list is oversized for the chunk budget but must never be cut open.
	markup := `<ul><li>first item</li><li>second item</li><li>third item</li></ul>`
	s, err := NewHTMLSplitter(20)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := s.Split(markup)
	if err != nil {
		t.Fatal(err)
	}
	assertChunks(t, chunks, []string{canonical(t, markup)})
}

func TestHTMLSplitterOversizedTextLeaf(t *testing.T) {
	long := strings.Repeat("x", 50)
	markup := "<div><p>" + long + "</p></div>"
	s, err := NewHTMLSplitter(20)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := s.Split(markup)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := strings.Join(chunks, ""), canonical(t, markup); got != want {
		t.Errorf("concatenated chunks = %q, want %q", got, want)
	}
	found := false
	for _, c := range chunks {
		if strings.Contains(c, long) {
			found = true
		}
	}
	if !found {
		t.Errorf("oversized text node was truncated: %q", chunks)
	}
}

func TestHTMLSplitterBlankInput(t *testing.T) {
	s, err := NewHTMLSplitter(20)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := s.Split("  \n ")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %q", chunks)
	}
}
