// Package requirement turns an indexed job record into the ordered conditions a candidate is
// diagnosed against.
package requirement

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Job is the normalized job document as stored in the jobs index.
type Job struct {
	ID                 string           `mapstructure:"-" json:"id"`
	Title              string           `mapstructure:"title" json:"title,omitempty"`
	JobFunctions       []string         `mapstructure:"jobFunctions" json:"jobFunctions,omitempty"`
	Locations          []Location       `mapstructure:"locations" json:"locations,omitempty"`
	RequiredLanguages  []string         `mapstructure:"requiredLanguages" json:"requiredLanguages,omitempty"`
	PreferredLanguages []string         `mapstructure:"preferredLanguages" json:"preferredLanguages,omitempty"`
	MinimumDegreeLevel string           `mapstructure:"minimumDegreeLevel" json:"minimumDegreeLevel,omitempty"`
	ExperienceRange    *ExperienceRange `mapstructure:"experienceYearRange" json:"experienceYearRange,omitempty"`
	BoolObj            any              `mapstructure:"boolObj" json:"boolObj,omitempty"`
}

// Location is one place the job is offered in.
type Location struct {
	Country         string `mapstructure:"country" json:"country,omitempty"`
	OfficialCountry string `mapstructure:"officialCountry" json:"officialCountry,omitempty"`
	City            string `mapstructure:"city" json:"city,omitempty"`
	Province        string `mapstructure:"province" json:"province,omitempty"`
}

// ExperienceRange is the declared experience in years. Any bound may be missing.
type ExperienceRange struct {
	Gte *float64 `mapstructure:"gte" json:"gte,omitempty"`
	Lte *float64 `mapstructure:"lte" json:"lte,omitempty"`
	Gt  *float64 `mapstructure:"gt" json:"gt,omitempty"`
	Lt  *float64 `mapstructure:"lt" json:"lt,omitempty"`
}

func (r *ExperienceRange) declared() bool {
	return r != nil && (r.Gte != nil || r.Lte != nil || r.Gt != nil || r.Lt != nil)
}

// DecodeJob decodes the _source of a job document.
func DecodeJob(id string, source map[string]any) (Job, error) {
	var job Job
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &job,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Job{}, fmt.Errorf("create job decoder: %w", err)
	}
	if err := decoder.Decode(source); err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	job.ID = id
	return job, nil
}
