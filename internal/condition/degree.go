package condition

import (
	"fmt"
	"strings"
)

// DegreeLevel is an academic degree ordered by score.
type DegreeLevel string

const (
	DegreeHighSchool DegreeLevel = "HIGH_SCHOOL"
	DegreeAssociate  DegreeLevel = "ASSOCIATE"
	DegreeBachelor   DegreeLevel = "BACHELOR"
	DegreeMaster     DegreeLevel = "MASTER"
	DegreeMBA        DegreeLevel = "MBA"
	DegreeDoctorate  DegreeLevel = "DOCTORATE"
)

var degreeScores = map[DegreeLevel]int{
	DegreeHighSchool: 1,
	DegreeAssociate:  2,
	DegreeBachelor:   3,
	DegreeMaster:     4,
	DegreeMBA:        4,
	DegreeDoctorate:  5,
}

// ParseDegreeLevel accepts names like "Bachelor", "bachelor" or "BACHELOR".
func ParseDegreeLevel(name string) (DegreeLevel, bool) {
	level := DegreeLevel(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), " ", "_")))
	_, ok := degreeScores[level]
	return level, ok
}

// Score returns the ordering score of the level, zero when unknown.
func (d DegreeLevel) Score() int {
	return degreeScores[d]
}

// Degree requires the candidate's highest degree to be at or above a minimum level.
type Degree struct {
	minimum DegreeLevel
}

// NewDegree builds a Degree condition. It fails for levels without a score.
func NewDegree(minimum DegreeLevel) (*Degree, error) {
	if minimum.Score() == 0 {
		return nil, fmt.Errorf("unknown degree level %q", minimum)
	}
	return &Degree{minimum: minimum}, nil
}

func (d *Degree) Minimum() DegreeLevel { return d.minimum }

func (d *Degree) Children() []Condition { return nil }

func (d *Degree) InvalidFields(schema Schema) []string {
	return unknownFields(schema, FieldHighestDegreeScore)
}

func (d *Degree) UI() string {
	return fmt.Sprintf("degree: %s or above", d.minimum)
}

func (d *Degree) Compile() Fragment {
	return Fragment{"range": map[string]any{
		FieldHighestDegreeScore: map[string]any{"gte": d.minimum.Score()},
	}}
}

func (d *Degree) Key() string {
	return fmt.Sprintf("degree(%d)", d.minimum.Score())
}

func (d *Degree) Strength() Strength { return Required }
