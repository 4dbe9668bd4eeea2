package entity

// FieldType is the declared type of a configured extraction field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeDate    FieldType = "date"
	FieldTypeBoolean FieldType = "boolean"
)

// FieldSpec is one entry of the externally configured required-field table.
// The set of specs doubles as the allowlist for stored extraction data.
type FieldSpec struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// DefaultValue returns the typed placeholder the LLM is instructed to emit
// when a field is not present on the document.
func (f FieldSpec) DefaultValue() any {
	switch f.Type {
	case FieldTypeNumber:
		return 0
	case FieldTypeDate:
		return nil
	case FieldTypeBoolean:
		return false
	default:
		return "-"
	}
}

// DefaultFieldSpecs covers the four canonical fields. Deployments normally
// extend this table with their own custom fields.
func DefaultFieldSpecs() []FieldSpec {
	return []FieldSpec{
		{Name: "Invoice No", Type: FieldTypeString},
		{Name: "Supplier GSTIN", Type: FieldTypeString},
		{Name: "Invoice Date", Type: FieldTypeDate},
		{Name: "Total Amount", Type: FieldTypeNumber},
	}
}

// AllowedNames returns the allowlist of field names derived from specs.
func AllowedNames(specs []FieldSpec) map[string]struct{} {
	out := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		out[s.Name] = struct{}{}
	}
	return out
}
