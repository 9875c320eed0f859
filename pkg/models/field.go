package models

// FieldType is the closed set of primitive field kinds a schema may declare.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeDecimal  FieldType = "decimal"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDate     FieldType = "date"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeEnum     FieldType = "enum"
	FieldTypeRelation FieldType = "relation"
	FieldTypeJSON     FieldType = "json"
	FieldTypeFile     FieldType = "file"
	FieldTypeCurrency FieldType = "currency"
	FieldTypeBarcode  FieldType = "barcode"
)

// validFieldTypes is the membership set for IsValid.
var validFieldTypes = map[FieldType]struct{}{
	FieldTypeString: {}, FieldTypeText: {}, FieldTypeNumber: {},
	FieldTypeDecimal: {}, FieldTypeBoolean: {}, FieldTypeDate: {},
	FieldTypeDatetime: {}, FieldTypeEnum: {}, FieldTypeRelation: {},
	FieldTypeJSON: {}, FieldTypeFile: {}, FieldTypeCurrency: {},
	FieldTypeBarcode: {},
}

// IsValid reports whether t is a known field type.
func (t FieldType) IsValid() bool {
	_, ok := validFieldTypes[t]
	return ok
}

// FieldValidation holds the declarative constraints for one field.
// Zero values mean "not constrained"; pointer fields distinguish an absent
// bound from a bound of zero.
type FieldValidation struct {
	Required  bool     `json:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Precision *int     `json:"precision,omitempty"` // total significant digits for decimal/currency
	Scale     *int     `json:"scale,omitempty"`     // digits after the decimal point
	Pattern   string   `json:"pattern,omitempty"`
	Default   any      `json:"default,omitempty"`
}

// RelationConfig targets another entity for relation fields.
type RelationConfig struct {
	TargetEntity string `json:"target_entity"`
	ValueField   string `json:"value_field"`
	DisplayField string `json:"display_field"`
}

// UIHints carries rendering hints consumed by the presentation layer.
// The engine stores and serves them but never interprets them.
type UIHints struct {
	Component string `json:"component,omitempty"`
	Width     int    `json:"width,omitempty"`
	ReadOnly  bool   `json:"read_only,omitempty"`
	Hidden    bool   `json:"hidden,omitempty"`
	HelpText  string `json:"help_text,omitempty"`
}

// FieldDefinition describes one field within an entity schema.
type FieldDefinition struct {
	Name        string          `json:"name"`
	Label       string          `json:"label"`
	Type        FieldType       `json:"type"`
	Validation  FieldValidation `json:"validation,omitempty"`
	EnumOptions []string        `json:"enum_options,omitempty"`
	Relation    *RelationConfig `json:"relation,omitempty"`
	ERPColumn   string          `json:"erp_column,omitempty"`
	Transform   string          `json:"transform,omitempty"`
	Order       int             `json:"order"`
	Group       string          `json:"group,omitempty"`
	UI          UIHints         `json:"ui,omitempty"`
}

// FieldGroup is a named, ordered grouping of fields for form layout.
type FieldGroup struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Order int    `json:"order"`
}
