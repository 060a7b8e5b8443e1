package intake

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomerProfile is the validated intake. It is created once per
// conversation and never modified afterwards.
type CustomerProfile struct {
	Name               string    `json:"name"`
	ZipCode            string    `json:"zip_code"`
	ChronicCondition   Condition `json:"chronic_condition"`
	OtherCondition     string    `json:"other_condition,omitempty"`
	CuisinePreferences []string  `json:"cuisine_preferences"`
	AvoidIngredients   []string  `json:"avoid_ingredients"`
}

// Complete reports whether the required fields are present.
func (p CustomerProfile) Complete() bool {
	return p.Name != "" && p.ZipCode != ""
}

// ConditionLabel returns a human readable condition name.
func (p CustomerProfile) ConditionLabel() string {
	switch p.ChronicCondition {
	case ConditionNone:
		return "Not provided"
	case ConditionOther:
		if p.OtherCondition != "" {
			return p.OtherCondition
		}
		return "Other"
	}
	if label, ok := conditionLabels[p.ChronicCondition]; ok {
		return label
	}
	return string(p.ChronicCondition)
}

// Clone returns a deep copy so callers cannot mutate the stored slices.
func (p CustomerProfile) Clone() CustomerProfile {
	c := p
	c.CuisinePreferences = append([]string(nil), p.CuisinePreferences...)
	c.AvoidIngredients = append([]string(nil), p.AvoidIngredients...)
	return c
}

// Summary renders the profile as the opening message of a conversation.
func (p CustomerProfile) Summary() string {
	var b strings.Builder
	b.WriteString("Here is my information:\n")
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	fmt.Fprintf(&b, "- Chronic condition: %s\n", p.ConditionLabel())
	fmt.Fprintf(&b, "- Zip code: %s\n", p.ZipCode)
	fmt.Fprintf(&b, "- Cuisine preferences: %s\n", joinOrNone(p.CuisinePreferences))
	fmt.Fprintf(&b, "- Ingredients to avoid: %s", joinOrNone(p.AvoidIngredients))
	return b.String()
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}

/* =================================================================================
									ERRORS
=================================================================================*/

// FieldError describes one rejected form field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError is returned when the intake form is incomplete or invalid.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return fmt.Sprintf("invalid intake form: %s", strings.Join(names, ", "))
}

// Has reports whether the named field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func newValidationError(verrs validator.ValidationErrors) *ValidationError {
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
