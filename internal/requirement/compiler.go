package requirement

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spigell/talent-screener/internal/condition"
)

// LocationPolicy decides whether a location mismatch blocks a candidate.
type LocationPolicy string

const (
	LocationPreferred LocationPolicy = "preferred"
	LocationRequired  LocationPolicy = "required"
)

func (p LocationPolicy) strength() condition.Strength {
	if p == LocationRequired {
		return condition.Required
	}
	return condition.Preferred
}

// ErrUnknownDegree matches UnknownDegreeError.
var ErrUnknownDegree = errors.New("unknown degree level")

type UnknownDegreeError struct {
	JobID string
	Level string
}

func (e *UnknownDegreeError) Error() string {
	return fmt.Sprintf("job %s: %s %q", e.JobID, ErrUnknownDegree, e.Level)
}

func (e *UnknownDegreeError) Is(target error) bool { return target == ErrUnknownDegree }

// Compiler builds the ordered top-level conditions of a job:
// skill, location, experience, language, job function, degree.
// A requirement the job does not declare yields no condition.
type Compiler struct {
	skills   SkillParser
	policy   LocationPolicy
	synonyms map[string][]string
}

type Option func(*Compiler)

func WithSkillParser(p SkillParser) Option {
	return func(c *Compiler) {
		if p != nil {
			c.skills = p
		}
	}
}

func WithLocationPolicy(p LocationPolicy) Option {
	return func(c *Compiler) {
		if p != "" {
			c.policy = p
		}
	}
}

// WithLanguageSynonyms sets extra keywords accepted for a language, keyed case-insensitively.
func WithLanguageSynonyms(synonyms map[string][]string) Option {
	return func(c *Compiler) {
		for lang, words := range synonyms {
			key := strings.ToLower(strings.TrimSpace(lang))
			c.synonyms[key] = append(c.synonyms[key], words...)
		}
	}
}

func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{
		skills:   BoolObjectParser{},
		policy:   LocationPreferred,
		synonyms: map[string][]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile returns the job's conditions in declaration order.
func (c *Compiler) Compile(job Job) ([]condition.Condition, error) {
	var out []condition.Condition

	skill, err := c.skill(job)
	if err != nil {
		return nil, fmt.Errorf("job %s skill: %w", job.ID, err)
	}

	degree, err := c.degree(job)
	if err != nil {
		return nil, err
	}

	for _, cond := range []condition.Condition{
		skill,
		c.location(job),
		c.experience(job),
		c.language(job),
		c.jobFunction(job),
		degree,
	} {
		if cond != nil {
			out = append(out, cond)
		}
	}
	return out, nil
}

func (c *Compiler) skill(job Job) (condition.Condition, error) {
	if isEmptyExpression(job.BoolObj) {
		return nil, nil
	}
	return c.skills.Parse(job.BoolObj)
}

func (c *Compiler) location(job Job) condition.Condition {
	strength := c.policy.strength()
	var children []condition.Condition
	for _, loc := range job.Locations {
		if official := strings.TrimSpace(loc.OfficialCountry); official != "" {
			children = append(children, condition.NewLocation(official, true, strength))
			continue
		}
		if country := strings.TrimSpace(loc.Country); country != "" {
			children = append(children, condition.NewLocation(country, false, strength))
		}
	}
	if len(children) == 0 {
		return nil
	}
	return condition.Or(children...)
}

func (c *Compiler) experience(job Job) condition.Condition {
	r := job.ExperienceRange
	if !r.declared() {
		return nil
	}

	lowerTol, upperTol := Tolerance(lowerOf(r), upperOf(r))
	widened := condition.Bounds{}
	switch {
	case r.Gte != nil:
		widened.Gte = condition.Float(*r.Gte - lowerTol)
	case r.Gt != nil:
		widened.Gt = condition.Float(*r.Gt - lowerTol)
	}
	switch {
	case r.Lte != nil:
		widened.Lte = condition.Float(*r.Lte + upperTol)
	case r.Lt != nil:
		widened.Lt = condition.Float(*r.Lt + upperTol)
	}
	return condition.NewRange(condition.FieldExperienceYears, widened)
}

func (c *Compiler) language(job Job) condition.Condition {
	var children []condition.Condition
	for _, lang := range job.RequiredLanguages {
		lang = strings.TrimSpace(lang)
		if lang == "" {
			continue
		}
		words := append([]string{lang}, c.synonyms[strings.ToLower(lang)]...)
		children = append(children, condition.NewKeyword(condition.FieldLanguages, words...))
	}
	if len(children) == 0 {
		return nil
	}
	return condition.And(children...)
}

func (c *Compiler) jobFunction(job Job) condition.Condition {
	kw := condition.NewKeyword(condition.FieldJobFunctions, job.JobFunctions...)
	if len(kw.Values()) == 0 {
		return nil
	}
	return kw
}

func (c *Compiler) degree(job Job) (condition.Condition, error) {
	raw := strings.TrimSpace(job.MinimumDegreeLevel)
	if raw == "" {
		return nil, nil
	}
	level, ok := condition.ParseDegreeLevel(raw)
	if !ok {
		return nil, &UnknownDegreeError{JobID: job.ID, Level: raw}
	}
	d, err := condition.NewDegree(level)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Tolerance returns how many years the declared range is widened on each side:
// a third of the bound, capped at 2 years below and 3 years above.
func Tolerance(lower, upper float64) (float64, float64) {
	return math.Min(math.Floor(lower/3), 2), math.Min(math.Floor(upper/3), 3)
}

func lowerOf(r *ExperienceRange) float64 {
	switch {
	case r.Gte != nil:
		return *r.Gte
	case r.Gt != nil:
		return *r.Gt
	}
	return 0
}

func upperOf(r *ExperienceRange) float64 {
	switch {
	case r.Lte != nil:
		return *r.Lte
	case r.Lt != nil:
		return *r.Lt
	}
	return 0
}

func isEmptyExpression(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}
