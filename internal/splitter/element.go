package splitter

import "fmt"

// ElementCategory classifies a layout element from a document partitioner.
type ElementCategory string

const (
	ElementParagraph ElementCategory = "paragraph"
	ElementHeading   ElementCategory = "heading"
	ElementListItem  ElementCategory = "list_item"
	ElementTable     ElementCategory = "table"
)

// Element is one layout-aware unit produced by an upstream partitioner.
// Page is 1-based; a page change resets the overlap window.
type Element struct {
	Category ElementCategory
	Text     string
	Page     int
}

// ElementSplitter packs partitioned layout elements into chunks. Overlap
// context never crosses a page boundary.
type ElementSplitter struct {
	chunkSize    int
	chunkOverlap int
	length       LenFunc
}

func NewElementSplitter(chunkSize, chunkOverlap int, opts ...Option) (*ElementSplitter, error) {
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
	return &ElementSplitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap, length: o.length}, nil
}

// SplitElements merges element texts page by page so that no overlap window
// spans a page boundary.
func (s *ElementSplitter) SplitElements(elements []Element) ([]string, error) {
	var chunks []string
	var page []string
	currentPage := 0

	flush := func() {
		if len(page) > 0 {
			chunks = append(chunks, MergeUnits(page, "\n\n", s.chunkSize, s.chunkOverlap, s.length)...)
			page = page[:0]
		}
	}

	for _, el := range elements {
		if el.Text == "" {
			continue
		}
		if el.Page != currentPage {
			flush()
			currentPage = el.Page
		}
		page = append(page, el.Text)
	}
	flush()
	return chunks, nil
}
