package condition

// Talent index fields referenced by compiled requirements.
const (
	FieldID                 = "_id"
	FieldSkills             = "skills"
	FieldLanguages          = "languages"
	FieldJobFunctions       = "jobFunctions"
	FieldExperienceYears    = "experienceYears"
	FieldHighestDegreeScore = "highestDegreeScore"
	FieldLocationCountry    = "preferredLocations.country"
	FieldLocationOfficial   = "preferredLocations.officialCountry"
)

// Schema is the set of field names the oracle knows about.
type Schema map[string]struct{}

// NewSchema builds a schema from field names.
func NewSchema(fields ...string) Schema {
	s := make(Schema, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		s[f] = struct{}{}
	}
	return s
}

// StaticSchema returns the talent index fields known without asking the backend.
func StaticSchema() Schema {
	return NewSchema(
		FieldSkills,
		FieldLanguages,
		FieldJobFunctions,
		FieldExperienceYears,
		FieldHighestDegreeScore,
		FieldLocationCountry,
		FieldLocationOfficial,
	)
}

// Has reports whether field is known. The document id is always known.
func (s Schema) Has(field string) bool {
	if field == FieldID {
		return true
	}
	_, ok := s[field]
	return ok
}

// Fields returns the known field names in sorted order.
func (s Schema) Fields() []string {
	return sortedKeys(s)
}

func unknownFields(schema Schema, fields ...string) []string {
	var out []string
	for _, f := range fields {
		if !schema.Has(f) {
			out = append(out, f)
		}
	}
	return out
}
