package condition

import (
	"fmt"
	"strings"
)

// Operator combines the children of a Group.
type Operator string

const (
	AND Operator = "AND"
	OR  Operator = "OR"
	NOT Operator = "NOT"
)

// Group is a composite condition. An empty AND is always true, an empty OR is always false
// and NOT takes exactly one child.
type Group struct {
	op       Operator
	children []Condition
}

// NewGroup builds a group and checks its arity.
func NewGroup(op Operator, children ...Condition) (*Group, error) {
	g := &Group{op: op, children: append([]Condition(nil), children...)}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func And(children ...Condition) *Group {
	return &Group{op: AND, children: append([]Condition(nil), children...)}
}

func Or(children ...Condition) *Group {
	return &Group{op: OR, children: append([]Condition(nil), children...)}
}

func Not(child Condition) *Group {
	return &Group{op: NOT, children: []Condition{child}}
}

func (g *Group) Operator() Operator { return g.op }

func (g *Group) Children() []Condition {
	return append([]Condition(nil), g.children...)
}

func (g *Group) validate() error {
	switch g.op {
	case AND, OR:
	case NOT:
		if len(g.children) != 1 {
			return &MalformedConditionError{Operator: g.op, Reason: fmt.Sprintf("want exactly one child, got %d", len(g.children))}
		}
	default:
		return &MalformedConditionError{Operator: g.op, Reason: "unknown operator"}
	}
	for i, c := range g.children {
		if c == nil {
			return &MalformedConditionError{Operator: g.op, Reason: fmt.Sprintf("child %d is nil", i)}
		}
	}
	return nil
}

func (g *Group) InvalidFields(schema Schema) []string {
	var out []string
	for _, c := range g.children {
		if c == nil {
			continue
		}
		out = append(out, c.InvalidFields(schema)...)
	}
	return out
}

func (g *Group) UI() string {
	switch {
	case g.op == NOT && len(g.children) == 1:
		return "NOT " + ui(g.children[0])
	case len(g.children) == 0 && g.op == AND:
		return "(always)"
	case len(g.children) == 0:
		return "(never)"
	}
	parts := make([]string, len(g.children))
	for i, c := range g.children {
		parts[i] = ui(c)
	}
	return "(" + strings.Join(parts, " "+string(g.op)+" ") + ")"
}

func (g *Group) Compile() Fragment {
	clauses := make([]any, 0, len(g.children))
	for _, c := range g.children {
		if c == nil {
			continue
		}
		clauses = append(clauses, map[string]any(c.Compile()))
	}

	switch g.op {
	case OR:
		if len(clauses) == 0 {
			return Fragment{"match_none": map[string]any{}}
		}
		return Fragment{"bool": map[string]any{"should": clauses, "minimum_should_match": 1}}
	case NOT:
		return Fragment{"bool": map[string]any{"must_not": clauses}}
	default:
		if len(clauses) == 0 {
			return Fragment{"match_all": map[string]any{}}
		}
		return Fragment{"bool": map[string]any{"must": clauses}}
	}
}

func (g *Group) Key() string {
	keys := make([]string, len(g.children))
	for i, c := range g.children {
		if c == nil {
			keys[i] = "nil"
			continue
		}
		keys[i] = c.Key()
	}
	return strings.ToLower(string(g.op)) + "(" + strings.Join(keys, ",") + ")"
}

// Strength is preferred only when the group has children and all of them are preferred.
func (g *Group) Strength() Strength {
	if len(g.children) == 0 {
		return Required
	}
	for _, c := range g.children {
		if c == nil || c.Strength() != Preferred {
			return Required
		}
	}
	return Preferred
}

func ui(c Condition) string {
	if c == nil {
		return "<nil>"
	}
	return c.UI()
}
