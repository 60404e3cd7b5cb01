// Package condition models the logical requirement conditions a candidate is screened against.
//
// A condition is either a leaf (Keyword, Range, Location, Degree) or a Group combining children
// with AND, OR or NOT. Conditions are immutable once built and compile to an Elasticsearch query
// fragment. Two conditions are equal when their canonical keys are equal.
package condition

import (
	"sort"
)

// Fragment is a compiled boolean predicate in Elasticsearch query DSL form.
type Fragment map[string]any

// Strength tells whether a failed condition blocks the candidate or is only reported.
type Strength int

const (
	Required Strength = iota
	Preferred
)

func (s Strength) String() string {
	if s == Preferred {
		return "preferred"
	}
	return "required"
}

// Condition is a logical requirement over candidate attributes.
type Condition interface {
	// Children returns the direct children of a group, nil for leaves.
	Children() []Condition
	// InvalidFields returns the referenced fields unknown to schema, including descendants.
	InvalidFields(schema Schema) []string
	// UI renders the condition for humans. It is never used for comparison.
	UI() string
	// Compile returns the query fragment for this condition.
	Compile() Fragment
	// Key is a canonical structural encoding of the condition.
	Key() string
	Strength() Strength
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Condition) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}

// Walk visits c and its descendants depth first. Returning false from fn skips the children
// of the visited node.
func Walk(c Condition, fn func(Condition) bool) {
	if c == nil {
		return
	}
	if !fn(c) {
		return
	}
	for _, child := range c.Children() {
		Walk(child, fn)
	}
}

// InvalidFields returns the sorted union of unknown fields over all conditions.
func InvalidFields(schema Schema, conds ...Condition) []string {
	seen := make(map[string]struct{})
	for _, c := range conds {
		if c == nil {
			continue
		}
		for _, f := range c.InvalidFields(schema) {
			seen[f] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Validate checks the structural invariants of c and its descendants.
func Validate(c Condition) error {
	if c == nil {
		return &MalformedConditionError{Reason: "nil condition"}
	}

	var err error
	Walk(c, func(node Condition) bool {
		if err != nil {
			return false
		}
		g, ok := node.(*Group)
		if !ok {
			return true
		}
		err = g.validate()
		return err == nil
	})
	return err
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
