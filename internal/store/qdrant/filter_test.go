package qdrant

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/quiltai/quilt/internal/filter"
)

func fieldOf(t *testing.T, c *pb.Condition) *pb.FieldCondition {
	t.Helper()
	f, ok := c.ConditionOneOf.(*pb.Condition_Field)
	if !ok {
		t.Fatalf("condition is %T, want field", c.ConditionOneOf)
	}
	return f.Field
}

func mustFilter(t *testing.T, expr string) *pb.Filter {
	t.Helper()
	node, err := filter.Parse(expr)
	if err != nil {
		t.Fatal(err)
	}
	f, err := toFilter(node)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestToFilterNil(t *testing.T) {
	got, err := toFilter(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestToFilterComparison(t *testing.T) {
	f := mustFilter(t, `md.author == "jane"`)
	if len(f.Must) != 1 {
		t.Fatalf("must = %+v", f.Must)
	}
	field := fieldOf(t, f.Must[0])
	if field.Key != "author" {
		t.Errorf("key = %q", field.Key)
	}
	kw, ok := field.Match.MatchValue.(*pb.Match_Keyword)
	if !ok || kw.Keyword != "jane" {
		t.Errorf("match = %+v", field.Match)
	}
}

func TestToFilterIntegerEquality(t *testing.T) {
	field := fieldOf(t, mustFilter(t, `md.year == 2021`).Must[0])
	m, ok := field.Match.MatchValue.(*pb.Match_Integer)
	if !ok || m.Integer != 2021 {
		t.Errorf("match = %+v", field.Match)
	}
}

func TestToFilterRanges(t *testing.T) {
	f := mustFilter(t, `md.year > 2020 && md.year < 2030`)
	if len(f.Must) != 2 || len(f.Should) != 0 {
		t.Fatalf("filter = %+v", f)
	}
	gt := fieldOf(t, f.Must[0])
	if gt.Range == nil || gt.Range.Gt == nil || *gt.Range.Gt != 2020 {
		t.Errorf("gt condition = %+v", gt.Range)
	}
	lt := fieldOf(t, f.Must[1])
	if lt.Range == nil || lt.Range.Lt == nil || *lt.Range.Lt != 2030 {
		t.Errorf("lt condition = %+v", lt.Range)
	}
}

func TestToFilterStringRangeRejected(t *testing.T) {
	for _, expr := range []string{
		`md.name > "m"`,
		`md.year > 2020 && md.name < "m"`,
	} {
		node, err := filter.Parse(expr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := toFilter(node); err == nil {
			t.Errorf("toFilter(%s): expected error for string-valued range", expr)
		}
	}
}

func TestToFilterOrMapsToShould(t *testing.T) {
	f := mustFilter(t, `md.lang == "en" || md.lang == "de"`)
	if len(f.Should) != 2 || len(f.Must) != 0 {
		t.Errorf("filter = %+v", f)
	}
}

func TestToFilterLikeStripsWildcards(t *testing.T) {
	field := fieldOf(t, mustFilter(t, `md.title LIKE "gopher"`).Must[0])
	txt, ok := field.Match.MatchValue.(*pb.Match_Text)
	if !ok || txt.Text != "gopher" {
		t.Errorf("match = %+v", field.Match)
	}
}
