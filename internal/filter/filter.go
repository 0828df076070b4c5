// Package filter parses a small boolean predicate DSL into a backend-neutral
// filter tree.
//
// Grammar: comparisons of the form `path op value` with op one of ==, >, <,
// LIKE, joined by && or ||. A single expression must use only one of && or ||
// at its top level; parentheses are not supported. This restriction is kept
// deliberately so existing filter strings keep the exact semantics callers
// depend on.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CompareOp is a comparison operator on a single property.
type CompareOp string

const (
	Eq   CompareOp = "=="
	Gt   CompareOp = ">"
	Lt   CompareOp = "<"
	Like CompareOp = "LIKE"
)

// BoolOp combines comparisons.
type BoolOp string

const (
	And BoolOp = "&&"
	Or  BoolOp = "||"
)

// Node is a parsed filter tree node: either a Comparison or a Combinator.
type Node interface {
	isNode()
}

// Comparison targets a single document property. Exactly one of StrValue or
// IntValue is meaningful, selected by IsInt. Metadata reports whether the
// path addressed a stored metadata property rather than a free-text one.
type Comparison struct {
	Path     string
	Op       CompareOp
	StrValue string
	IntValue int
	IsInt    bool
	Metadata bool
}

func (Comparison) isNode() {}

// Combinator joins two or more operands with a single boolean operator.
type Combinator struct {
	Op       BoolOp
	Operands []Node
}

func (Combinator) isNode() {}

// ParseError reports a malformed filter expression. It is raised before any
// backend round-trip.
type ParseError struct {
	Expr   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse filter %q: %s", e.Expr, e.Reason)
}

// DefaultMetadataPrefix marks paths that address stored metadata properties.
const DefaultMetadataPrefix = "md."

var comparisonRE = regexp.MustCompile(`^\s*(\S+)\s*(==|>|<|LIKE)\s*(.+?)\s*$`)

// Parser turns filter expressions into Nodes. The zero value uses
// DefaultMetadataPrefix.
type Parser struct {
	// MetadataPrefix determines which value-type tag a comparison gets;
	// it does not change how expressions parse.
	MetadataPrefix string
}

// Parse parses expr with the default metadata prefix.
func Parse(expr string) (Node, error) {
	return (&Parser{}).Parse(expr)
}

// Parse parses a single filter expression. Mixing && and || at the same
// level, or an unparseable comparison, yields a *ParseError.
func (p *Parser) Parse(expr string) (Node, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, &ParseError{Expr: expr, Reason: "empty expression"}
	}
	hasAnd := strings.Contains(expr, string(And))
	hasOr := strings.Contains(expr, string(Or))
	if hasAnd && hasOr {
		return nil, &ParseError{Expr: expr, Reason: "cannot mix && and || in one expression"}
	}

	op := And
	if hasOr {
		op = Or
	}
	if !hasAnd && !hasOr {
		return p.parseComparison(expr)
	}

	parts := strings.Split(expr, string(op))
	operands := make([]Node, 0, len(parts))
	for _, part := range parts {
		cmp, err := p.parseComparison(part)
		if err != nil {
			return nil, err
		}
		operands = append(operands, cmp)
	}
	return Combinator{Op: op, Operands: operands}, nil
}

func (p *Parser) parseComparison(expr string) (Node, error) {
	m := comparisonRE.FindStringSubmatch(expr)
	if m == nil {
		return nil, &ParseError{Expr: expr, Reason: "expected `path op value`"}
	}
	path, op, raw := m[1], CompareOp(m[2]), m[3]

	prefix := p.MetadataPrefix
	if prefix == "" {
		prefix = DefaultMetadataPrefix
	}
	cmp := Comparison{Op: op, Metadata: strings.HasPrefix(path, prefix)}
	cmp.Path = strings.TrimPrefix(path, prefix)

	quoted := len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"'
	switch {
	case op == Like:
		// LIKE always compares text, wildcard-wrapped on both ends.
		v := raw
		if quoted {
			v = raw[1 : len(raw)-1]
		}
		cmp.StrValue = "*" + v + "*"
	case quoted:
		cmp.StrValue = raw[1 : len(raw)-1]
	default:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &ParseError{Expr: expr, Reason: fmt.Sprintf("value %q is neither quoted nor an integer", raw)}
		}
		cmp.IntValue = n
		cmp.IsInt = true
	}
	return cmp, nil
}
