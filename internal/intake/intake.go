/*
Package intake validates and normalizes the customer profile collected before
a meal plan conversation starts.
*/
package intake

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Condition is the chronic condition reported on the intake form.
type Condition string

const (
	ConditionNone                 Condition = ""
	ConditionType2Diabetes        Condition = "type_2_diabetes"
	ConditionPrediabetes          Condition = "prediabetes"
	ConditionHypertension         Condition = "hypertension"
	ConditionHeartDisease         Condition = "heart_disease"
	ConditionChronicKidneyDisease Condition = "chronic_kidney_disease"
	ConditionObesity              Condition = "obesity"
	ConditionOther                Condition = "other"
)

var conditionLabels = map[Condition]string{
	ConditionType2Diabetes:        "Type 2 Diabetes",
	ConditionPrediabetes:          "Prediabetes",
	ConditionHypertension:         "Hypertension",
	ConditionHeartDisease:         "Heart Disease",
	ConditionChronicKidneyDisease: "Chronic Kidney Disease",
	ConditionObesity:              "Obesity",
}

// Label is the display name of the condition.
func (c Condition) Label() string {
	if label, ok := conditionLabels[c]; ok {
		return label
	}
	if c == ConditionOther {
		return "Other"
	}
	return string(c)
}

// Conditions lists the enumerated conditions in display order. ConditionOther is last.
func Conditions() []Condition {
	return []Condition{
		ConditionType2Diabetes,
		ConditionPrediabetes,
		ConditionHypertension,
		ConditionHeartDisease,
		ConditionChronicKidneyDisease,
		ConditionObesity,
		ConditionOther,
	}
}

// Form holds the raw values submitted by the user.
type Form struct {
	Name               string   `json:"name" form:"name"`
	ZipCode            string   `json:"zip_code" form:"zip_code"`
	ChronicCondition   string   `json:"chronic_condition" form:"chronic_condition"`
	OtherCondition     string   `json:"other_condition" form:"other_condition"`
	CuisinePreferences []string `json:"cuisine_preferences" form:"cuisine_preferences"`
	AvoidIngredients   string   `json:"avoid_ingredients" form:"avoid_ingredients"`
}

// normalizedForm is the trimmed form the validator runs against.
type normalizedForm struct {
	Name             string `json:"name" validate:"required,max=100"`
	ZipCode          string `json:"zip_code" validate:"required,max=10"`
	ChronicCondition string `json:"chronic_condition" validate:"omitempty,oneof=type_2_diabetes prediabetes hypertension heart_disease chronic_kidney_disease obesity other"`
	OtherCondition   string `json:"other_condition" validate:"required_if=ChronicCondition other,max=100"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report json field names so errors line up with the submitted payload.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate turns a raw Form into a CustomerProfile. It returns a *ValidationError
// naming every field that failed; no profile is returned in that case.
func Validate(f Form) (CustomerProfile, error) {
	n := normalizedForm{
		Name:             strings.TrimSpace(f.Name),
		ZipCode:          strings.TrimSpace(f.ZipCode),
		ChronicCondition: strings.ToLower(strings.TrimSpace(f.ChronicCondition)),
		OtherCondition:   strings.TrimSpace(f.OtherCondition),
	}

	if err := getValidator().Struct(n); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return CustomerProfile{}, newValidationError(verrs)
		}
		return CustomerProfile{}, fmt.Errorf("intake validation failed: %w", err)
	}

	profile := CustomerProfile{
		Name:               n.Name,
		ZipCode:            n.ZipCode,
		ChronicCondition:   Condition(n.ChronicCondition),
		CuisinePreferences: dedupeFold(f.CuisinePreferences),
		AvoidIngredients:   SplitList(f.AvoidIngredients),
	}
	if profile.ChronicCondition == ConditionOther {
		profile.OtherCondition = n.OtherCondition
	}
	return profile, nil
}

// SplitList splits a comma separated value, trims each fragment and drops the
// empty ones. Order is preserved and duplicates are kept.
func SplitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// dedupeFold trims the values and removes empty and case-insensitive duplicates,
// keeping the first spelling seen.
func dedupeFold(values []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
