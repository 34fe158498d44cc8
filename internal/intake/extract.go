package intake

import (
	"strings"

	"tally-attio-relay/internal/config"
	"tally-attio-relay/internal/models"
)

// Extracted holds the named values pulled out of a submission.
type Extracted struct {
	Email     string
	FullName  string
	FirstName string
	LastName  string
	Company   string
	Website   string
	Phone     string
	Message   string
}

// Extractor looks fields up by label using a configurable alias map.
type Extractor struct {
	fields config.FieldMap
}

// NewExtractor creates an Extractor. A nil map falls back to the built-in aliases.
func NewExtractor(fields config.FieldMap) *Extractor {
	if fields == nil {
		fields = config.DefaultFieldMap()
	}
	return &Extractor{fields: fields}
}

// Extract pulls every known logical field out of the submission.
func (e *Extractor) Extract(fields []models.Field) Extracted {
	return Extracted{
		Email:     e.Named(fields, config.FieldEmail),
		FullName:  e.Named(fields, config.FieldName),
		FirstName: e.Named(fields, config.FieldFirstName),
		LastName:  e.Named(fields, config.FieldLastName),
		Company:   e.Named(fields, config.FieldCompany),
		Website:   e.Named(fields, config.FieldWebsite),
		Phone:     e.Named(fields, config.FieldPhone),
		Message:   e.Named(fields, config.FieldMessage),
	}
}

// Named returns the value of the first field whose label matches any alias of name.
func (e *Extractor) Named(fields []models.Field, name string) string {
	if f, ok := find(fields, e.fields[name]); ok {
		return strings.TrimSpace(f.Value.String())
	}
	return ""
}

// NamedValues is Named for multi-value fields.
func (e *Extractor) NamedValues(fields []models.Field, name string) []string {
	if f, ok := find(fields, e.fields[name]); ok {
		return f.Value.Strings()
	}
	return []string{}
}

// Value returns the value for label, or "" when no field carries it.
func Value(fields []models.Field, label string) string {
	if f, ok := find(fields, []string{label}); ok {
		return strings.TrimSpace(f.Value.String())
	}
	return ""
}

// Values returns the values for label, or an empty slice when no field carries it.
func Values(fields []models.Field, label string) []string {
	if f, ok := find(fields, []string{label}); ok {
		return f.Value.Strings()
	}
	return []string{}
}

// find walks fields in submission order so the first matching field wins,
// whichever alias it matched.
func find(fields []models.Field, labels []string) (models.Field, bool) {
	if len(labels) == 0 {
		return models.Field{}, false
	}
	for _, f := range fields {
		label := strings.TrimSpace(f.Label)
		for _, want := range labels {
			if strings.EqualFold(label, strings.TrimSpace(want)) {
				return f, true
			}
		}
	}
	return models.Field{}, false
}
