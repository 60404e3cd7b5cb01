package condition

import (
	"fmt"
	"strconv"
	"strings"
)

// Bounds holds the optional limits of a numeric range.
type Bounds struct {
	Gte *float64 `mapstructure:"gte" json:"gte,omitempty"`
	Lte *float64 `mapstructure:"lte" json:"lte,omitempty"`
	Gt  *float64 `mapstructure:"gt" json:"gt,omitempty"`
	Lt  *float64 `mapstructure:"lt" json:"lt,omitempty"`
}

// Empty reports whether no bound is set.
func (b Bounds) Empty() bool {
	return b.Gte == nil && b.Lte == nil && b.Gt == nil && b.Lt == nil
}

func (b Bounds) clone() Bounds {
	return Bounds{Gte: copyFloat(b.Gte), Lte: copyFloat(b.Lte), Gt: copyFloat(b.Gt), Lt: copyFloat(b.Lt)}
}

// Float returns a pointer to v, handy for building Bounds literals.
func Float(v float64) *float64 { return &v }

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Range matches when the numeric field lies within the bounds.
type Range struct {
	field  string
	bounds Bounds
}

func NewRange(field string, bounds Bounds) *Range {
	return &Range{field: field, bounds: bounds.clone()}
}

func (r *Range) Field() string { return r.field }

func (r *Range) Bounds() Bounds { return r.bounds.clone() }

func (r *Range) Children() []Condition { return nil }

func (r *Range) InvalidFields(schema Schema) []string {
	return unknownFields(schema, r.field)
}

func (r *Range) UI() string {
	parts := r.parts(" ")
	if len(parts) == 0 {
		return fmt.Sprintf("%s: any", r.field)
	}
	return fmt.Sprintf("%s: %s", r.field, strings.Join(parts, ", "))
}

func (r *Range) Compile() Fragment {
	body := map[string]any{}
	set := func(op string, v *float64) {
		if v != nil {
			body[op] = *v
		}
	}
	set("gte", r.bounds.Gte)
	set("lte", r.bounds.Lte)
	set("gt", r.bounds.Gt)
	set("lt", r.bounds.Lt)
	return Fragment{"range": map[string]any{r.field: body}}
}

func (r *Range) Key() string {
	return fmt.Sprintf("range(%q,%s)", r.field, strings.Join(r.parts("="), ","))
}

func (r *Range) Strength() Strength { return Required }

func (r *Range) parts(sep string) []string {
	var parts []string
	add := func(op string, v *float64) {
		if v != nil {
			parts = append(parts, op+sep+strconv.FormatFloat(*v, 'f', -1, 64))
		}
	}
	if sep == "=" {
		add("gte", r.bounds.Gte)
		add("gt", r.bounds.Gt)
		add("lte", r.bounds.Lte)
		add("lt", r.bounds.Lt)
		return parts
	}
	add(">=", r.bounds.Gte)
	add(">", r.bounds.Gt)
	add("<=", r.bounds.Lte)
	add("<", r.bounds.Lt)
	return parts
}
