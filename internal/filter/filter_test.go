package filter

import (
	"errors"
	"testing"
)

func TestParseComparison(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want Comparison
	}{
		{
			name: "quoted string equality",
			expr: `md.author == "jane"`,
			want: Comparison{Path: "author", Op: Eq, StrValue: "jane", Metadata: true},
		},
		{
			name: "integer greater than",
			expr: `md.year > 2020`,
			want: Comparison{Path: "year", Op: Gt, IntValue: 2020, IsInt: true, Metadata: true},
		},
		{
			name: "integer less than without prefix",
			expr: `pages < 100`,
			want: Comparison{Path: "pages", Op: Lt, IntValue: 100, IsInt: true},
		},
		{
			name: "like wraps value in wildcards",
			expr: `md.title LIKE "foo"`,
			want: Comparison{Path: "title", Op: Like, StrValue: "*foo*", Metadata: true},
		},
		{
			name: "like tolerates unquoted value",
			expr: `md.title LIKE foo`,
			want: Comparison{Path: "title", Op: Like, StrValue: "*foo*", Metadata: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.expr)
			if err != nil {
				t.Fatal(err)
			}
			cmp, ok := got.(Comparison)
			if !ok {
				t.Fatalf("got %T, want Comparison", got)
			}
			if cmp != tt.want {
				t.Errorf("got %+v, want %+v", cmp, tt.want)
			}
		})
	}
}

func TestParseCombinator(t *testing.T) {
	got, err := Parse(`md.author == "jane" && md.year > 2020`)
	if err != nil {
		t.Fatal(err)
	}
	comb, ok := got.(Combinator)
	if !ok {
		t.Fatalf("got %T, want Combinator", got)
	}
	if comb.Op != And {
		t.Errorf("op = %q, want &&", comb.Op)
	}
	if len(comb.Operands) != 2 {
		t.Fatalf("got %d operands, want 2", len(comb.Operands))
	}
	first := comb.Operands[0].(Comparison)
	if first.Path != "author" || first.StrValue != "jane" {
		t.Errorf("first operand = %+v", first)
	}
	second := comb.Operands[1].(Comparison)
	if second.Path != "year" || second.IntValue != 2020 || !second.IsInt {
		t.Errorf("second operand = %+v", second)
	}
}

func TestParseOrCombinator(t *testing.T) {
	got, err := Parse(`md.lang == "en" || md.lang == "de" || md.lang == "fr"`)
	if err != nil {
		t.Fatal(err)
	}
	comb, ok := got.(Combinator)
	if !ok {
		t.Fatalf("got %T, want Combinator", got)
	}
	if comb.Op != Or {
		t.Errorf("op = %q, want ||", comb.Op)
	}
	if len(comb.Operands) != 3 {
		t.Errorf("got %d operands, want 3", len(comb.Operands))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty expression", "   "},
		{"mixed boolean operators", `a == "x" && b == "y" || c == "z"`},
		{"missing operator", `md.author "jane"`},
		{"unquoted non-integer value", `md.author == jane`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr)
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("got %T, want *ParseError", err)
			}
		})
	}
}

func TestParserCustomPrefix(t *testing.T) {
	p := &Parser{MetadataPrefix: "meta:"}
	got, err := p.Parse(`meta:kind == "report"`)
	if err != nil {
		t.Fatal(err)
	}
	cmp := got.(Comparison)
	if !cmp.Metadata || cmp.Path != "kind" {
		t.Errorf("got %+v, want metadata path kind", cmp)
	}
}
