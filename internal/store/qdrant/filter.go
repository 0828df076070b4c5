package qdrant

import (
	"fmt"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/quiltai/quilt/internal/filter"
)

// toFilter translates the backend-neutral filter tree into Qdrant's native
// filter representation. And maps to must, Or to should.
func toFilter(node filter.Node) (*pb.Filter, error) {
	if node == nil {
		return nil, nil
	}
	switch n := node.(type) {
	case filter.Combinator:
		conditions := make([]*pb.Condition, 0, len(n.Operands))
		for _, op := range n.Operands {
			cmp, ok := op.(filter.Comparison)
			if !ok {
				continue
			}
			c, err := toCondition(cmp)
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, c)
		}
		if n.Op == filter.Or {
			return &pb.Filter{Should: conditions}, nil
		}
		return &pb.Filter{Must: conditions}, nil
	case filter.Comparison:
		c, err := toCondition(n)
		if err != nil {
			return nil, err
		}
		return &pb.Filter{Must: []*pb.Condition{c}}, nil
	default:
		return nil, nil
	}
}

func toCondition(cmp filter.Comparison) (*pb.Condition, error) {
	field := &pb.FieldCondition{Key: cmp.Path}
	switch {
	case cmp.Op == filter.Like:
		// Qdrant full-text match; the parser's wildcard wrapping is
		// implied by substring semantics.
		field.Match = &pb.Match{MatchValue: &pb.Match_Text{Text: strings.Trim(cmp.StrValue, "*")}}
	case cmp.Op == filter.Eq && cmp.IsInt:
		field.Match = &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(cmp.IntValue)}}
	case cmp.Op == filter.Eq:
		field.Match = &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: cmp.StrValue}}
	case cmp.Op == filter.Gt || cmp.Op == filter.Lt:
		// Qdrant ranges are numeric only. A string operand cannot be
		// expressed here, so fail instead of comparing against zero.
		if !cmp.IsInt {
			return nil, fmt.Errorf("range comparison on %q requires an integer value", cmp.Path)
		}
		v := float64(cmp.IntValue)
		if cmp.Op == filter.Gt {
			field.Range = &pb.Range{Gt: &v}
		} else {
			field.Range = &pb.Range{Lt: &v}
		}
	}
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: field}}, nil
}
