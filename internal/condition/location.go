package condition

import (
	"fmt"
	"strings"
)

// Location matches candidates who prefer to work in a country. Official country codes are
// compared exactly, free-form country names go through full-text matching.
type Location struct {
	country  string
	official bool
	strength Strength
}

func NewLocation(country string, official bool, strength Strength) *Location {
	return &Location{country: strings.TrimSpace(country), official: official, strength: strength}
}

func (l *Location) Country() string { return l.country }

func (l *Location) Official() bool { return l.official }

func (l *Location) field() string {
	if l.official {
		return FieldLocationOfficial
	}
	return FieldLocationCountry
}

func (l *Location) Children() []Condition { return nil }

func (l *Location) InvalidFields(schema Schema) []string {
	return unknownFields(schema, l.field())
}

func (l *Location) UI() string {
	if l.strength == Preferred {
		return fmt.Sprintf("location: %s (preferred)", l.country)
	}
	return fmt.Sprintf("location: %s", l.country)
}

func (l *Location) Compile() Fragment {
	if l.official {
		return Fragment{"term": map[string]any{l.field(): l.country}}
	}
	return Fragment{"match": map[string]any{
		l.field(): map[string]any{"query": l.country, "operator": "and"},
	}}
}

// Key folds case only for free-form names: official codes go to an exact term query.
func (l *Location) Key() string {
	country := l.country
	if !l.official {
		country = strings.ToLower(country)
	}
	return fmt.Sprintf("loc(%q=%q,%s)", l.field(), country, l.strength)
}

func (l *Location) Strength() Strength { return l.strength }
