package condition

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Keyword matches when the field holds any of the values.
type Keyword struct {
	field  string
	values []string
}

// NewKeyword builds a Keyword condition. Values are trimmed, empties and repeats dropped,
// first occurrence order kept.
func NewKeyword(field string, values ...string) *Keyword {
	seen := make(map[string]struct{}, len(values))
	kept := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		kept = append(kept, v)
	}
	return &Keyword{field: field, values: kept}
}

func (k *Keyword) Field() string { return k.field }

// Values returns a copy of the accepted values.
func (k *Keyword) Values() []string {
	return append([]string(nil), k.values...)
}

func (k *Keyword) Children() []Condition { return nil }

func (k *Keyword) InvalidFields(schema Schema) []string {
	return unknownFields(schema, k.field)
}

func (k *Keyword) UI() string {
	return fmt.Sprintf("%s: %s", k.field, strings.Join(k.values, " | "))
}

func (k *Keyword) Compile() Fragment {
	return Fragment{"terms": map[string]any{k.field: k.Values()}}
}

func (k *Keyword) Key() string {
	sorted := k.Values()
	sort.Strings(sorted)
	quoted := make([]string, len(sorted))
	for i, v := range sorted {
		quoted[i] = strconv.Quote(v)
	}
	return fmt.Sprintf("kw(%q=[%s])", k.field, strings.Join(quoted, ","))
}

func (k *Keyword) Strength() Strength { return Required }
