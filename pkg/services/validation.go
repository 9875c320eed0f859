package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forgeline-inc/forgeline-engine/pkg/models"
)

// FieldViolation is one failed validation rule for one field.
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Validation rule identifiers, in evaluation order.
const (
	RuleRequired = "required"
	RuleType     = "type"
	RuleBounds   = "bounds"
	RulePattern  = "pattern"
	RuleUnique   = "unique"
)

// UniquenessChecker is the persistence collaborator that answers whether a
// value already exists. The validation engine only asserts that the
// constraint is declared; the existence check is delegated outward.
type UniquenessChecker interface {
	ExistsByField(ctx context.Context, slug, field string, value any, excludeID uuid.UUID) (bool, error)
}

// Validator interprets schema field definitions against record payloads.
type Validator interface {
	// Validate applies each field's rules in fixed order (required, type,
	// bounds, pattern) and reports the first failing rule per field.
	// Fields are validated independently; an empty result means valid.
	// Payload keys absent from the schema are ignored.
	Validate(schema *models.EntitySchema, payload map[string]any) []FieldViolation

	// ValidateWithUniqueness runs Validate and then, for fields declaring a
	// unique constraint that passed every local rule, consults the checker.
	ValidateWithUniqueness(ctx context.Context, schema *models.EntitySchema, payload map[string]any, checker UniquenessChecker, excludeID uuid.UUID) ([]FieldViolation, error)
}

type validator struct{}

// NewValidator creates a new Validator.
func NewValidator() Validator {
	return &validator{}
}

var _ Validator = (*validator)(nil)

func (v *validator) Validate(schema *models.EntitySchema, payload map[string]any) []FieldViolation {
	violations := []FieldViolation{}

	for i := range schema.Fields {
		field := &schema.Fields[i]
		value, present := payload[field.Name]

		if violation := validateField(field, value, present); violation != nil {
			violations = append(violations, *violation)
		}
	}

	return violations
}

func (v *validator) ValidateWithUniqueness(ctx context.Context, schema *models.EntitySchema, payload map[string]any, checker UniquenessChecker, excludeID uuid.UUID) ([]FieldViolation, error) {
	violations := v.Validate(schema, payload)

	failed := make(map[string]struct{}, len(violations))
	for _, violation := range violations {
		failed[violation.Field] = struct{}{}
	}

	for i := range schema.Fields {
		field := &schema.Fields[i]
		if !field.Validation.Unique {
			continue
		}
		if _, alreadyFailed := failed[field.Name]; alreadyFailed {
			continue
		}
		value, present := payload[field.Name]
		if !present || isEmptyValue(value) {
			continue
		}

		exists, err := checker.ExistsByField(ctx, schema.Slug, field.Name, value, excludeID)
		if err != nil {
			return nil, fmt.Errorf("uniqueness check for field %q: %w", field.Name, err)
		}
		if exists {
			violations = append(violations, FieldViolation{
				Field:   field.Name,
				Rule:    RuleUnique,
				Message: fmt.Sprintf("%s must be unique", field.Label),
			})
		}
	}

	return violations, nil
}

// validateField applies the fixed rule order to one field and returns the
// first failure, or nil when the field passes.
func validateField(field *models.FieldDefinition, value any, present bool) *FieldViolation {
	empty := !present || isEmptyValue(value)

	// (1) required/presence
	if field.Validation.Required && empty {
		return &FieldViolation{
			Field:   field.Name,
			Rule:    RuleRequired,
			Message: fmt.Sprintf("%s is required", field.Label),
		}
	}
	if empty {
		return nil
	}

	// (2) type conformance
	if message := checkType(field, value); message != "" {
		return &FieldViolation{Field: field.Name, Rule: RuleType, Message: message}
	}

	// (3) declared bounds
	if message := checkBounds(field, value); message != "" {
		return &FieldViolation{Field: field.Name, Rule: RuleBounds, Message: message}
	}

	// (4) pattern
	if message := checkPattern(field, value); message != "" {
		return &FieldViolation{Field: field.Name, Rule: RulePattern, Message: message}
	}

	return nil
}

func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && s == ""
}

// checkType verifies the value conforms to the field's declared type.
// Returns an empty string on success.
func checkType(field *models.FieldDefinition, value any) string {
	switch field.Type {
	case models.FieldTypeString, models.FieldTypeText, models.FieldTypeFile, models.FieldTypeBarcode:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("%s must be a string", field.Label)
		}

	case models.FieldTypeNumber:
		if _, ok := asNumber(value); !ok {
			return fmt.Sprintf("%s must be a number", field.Label)
		}

	case models.FieldTypeDecimal, models.FieldTypeCurrency:
		if _, ok := asDecimal(value); !ok {
			return fmt.Sprintf("%s must be a decimal number", field.Label)
		}

	case models.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("%s must be a boolean", field.Label)
		}

	case models.FieldTypeDate:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("%s must be a date string", field.Label)
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return fmt.Sprintf("%s must be a valid date (YYYY-MM-DD)", field.Label)
		}

	case models.FieldTypeDatetime:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("%s must be a datetime string", field.Label)
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return fmt.Sprintf("%s must be a valid RFC 3339 datetime", field.Label)
		}

	case models.FieldTypeEnum:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("%s must be a string", field.Label)
		}
		for _, option := range field.EnumOptions {
			if s == option {
				return ""
			}
		}
		return fmt.Sprintf("%s must be one of the declared options", field.Label)

	case models.FieldTypeRelation:
		s, ok := value.(string)
		if !ok || s == "" {
			return fmt.Sprintf("%s must be a non-empty identifier", field.Label)
		}

	case models.FieldTypeJSON:
		switch value.(type) {
		case map[string]any, []any:
		default:
			return fmt.Sprintf("%s must be a JSON object or array", field.Label)
		}
	}

	return ""
}

// checkBounds applies min/max, minLength/maxLength, and decimal precision.
func checkBounds(field *models.FieldDefinition, value any) string {
	validation := &field.Validation

	if s, ok := value.(string); ok {
		if validation.MinLength != nil && len(s) < *validation.MinLength {
			return fmt.Sprintf("%s must be at least %d characters", field.Label, *validation.MinLength)
		}
		if validation.MaxLength != nil && len(s) > *validation.MaxLength {
			return fmt.Sprintf("%s must be at most %d characters", field.Label, *validation.MaxLength)
		}
	}

	switch field.Type {
	case models.FieldTypeNumber:
		n, _ := asNumber(value)
		if validation.Min != nil && n < *validation.Min {
			return fmt.Sprintf("%s must be at least %v", field.Label, *validation.Min)
		}
		if validation.Max != nil && n > *validation.Max {
			return fmt.Sprintf("%s must be at most %v", field.Label, *validation.Max)
		}

	case models.FieldTypeDecimal, models.FieldTypeCurrency:
		d, _ := asDecimal(value)
		if validation.Min != nil && d.LessThan(decimal.NewFromFloat(*validation.Min)) {
			return fmt.Sprintf("%s must be at least %v", field.Label, *validation.Min)
		}
		if validation.Max != nil && d.GreaterThan(decimal.NewFromFloat(*validation.Max)) {
			return fmt.Sprintf("%s must be at most %v", field.Label, *validation.Max)
		}
		if validation.Scale != nil && int(-d.Exponent()) > *validation.Scale {
			return fmt.Sprintf("%s allows at most %d decimal places", field.Label, *validation.Scale)
		}
		if validation.Precision != nil && decimalDigits(d) > *validation.Precision {
			return fmt.Sprintf("%s allows at most %d significant digits", field.Label, *validation.Precision)
		}
	}

	return ""
}

func checkPattern(field *models.FieldDefinition, value any) string {
	if field.Validation.Pattern == "" {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return ""
	}

	re, err := regexp.Compile(field.Validation.Pattern)
	if err != nil {
		// A malformed pattern in a published schema fails the value rather
		// than silently admitting anything.
		return fmt.Sprintf("%s has an invalid validation pattern", field.Label)
	}
	if !re.MatchString(s) {
		return fmt.Sprintf("%s does not match the required format", field.Label)
	}
	return ""
}

// asNumber accepts the numeric shapes a decoded JSON payload may carry.
func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// asDecimal parses decimal/currency values from numbers or numeric strings.
func asDecimal(value any) (decimal.Decimal, bool) {
	switch n := value.(type) {
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	}
	return decimal.Decimal{}, false
}

// decimalDigits counts the significant digits of d.
func decimalDigits(d decimal.Decimal) int {
	digits := 0
	for _, c := range d.Coefficient().String() {
		if c >= '0' && c <= '9' {
			digits++
		}
	}
	return digits
}
