package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Form limits enforced by FormData.Validate.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MinRating            = 1
	MaxRating            = 5
)

var formValidate *validator.Validate

func init() {
	formValidate = validator.New(validator.WithRequiredStructEnabled())
	formValidate.RegisterTagNameFunc(jsonFieldName)
	if err := formValidate.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return Category(fl.Field().String()).Valid()
	}); err != nil {
		panic(fmt.Errorf("register category validation: %w", err))
	}
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// FormData is the user-entered payload a snapshot is created from.
type FormData struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description,omitempty" validate:"max=1000"`
	Category    Category `json:"category" validate:"required,category"`
	Likelihood  int      `json:"likelihood" validate:"min=1,max=5"`
	Impact      int      `json:"impact" validate:"min=1,max=5"`
	Tags        []string `json:"tags,omitempty"`
	Note        string   `json:"note,omitempty"`
}

// Validate checks the form rules applied before a snapshot is created. The
// store itself trusts its input; callers acting as the form layer validate.
func (f FormData) Validate() error {
	return ValidateStruct(f)
}

// ValidateStruct runs the validate tags of v and reports the first failure
// as a *ValidationError named after the field's JSON key.
func ValidateStruct(v any) error {
	err := formValidate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	return &ValidationError{Field: fe.Field(), Reason: describeFieldError(fe)}
}

// ValidatePatch applies the form rules to the fields a patch sets.
func ValidatePatch(p Patch) error {
	if p.Risk.Title != nil {
		title := *p.Risk.Title
		if strings.TrimSpace(title) == "" {
			return &ValidationError{Field: "title", Reason: "is required"}
		}
		if len([]rune(title)) > MaxTitleLength {
			return &ValidationError{Field: "title", Reason: fmt.Sprintf("must be at most %d characters", MaxTitleLength)}
		}
	}
	if p.Risk.Description != nil && len([]rune(*p.Risk.Description)) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", MaxDescriptionLength)}
	}
	if p.Risk.Category != nil && !p.Risk.Category.Valid() {
		return &ValidationError{Field: "category", Reason: categoryReason()}
	}
	if p.Risk.Likelihood != nil && !inRating(*p.Risk.Likelihood) {
		return &ValidationError{Field: "likelihood", Reason: ratingReason()}
	}
	if p.Risk.Impact != nil && !inRating(*p.Risk.Impact) {
		return &ValidationError{Field: "impact", Reason: ratingReason()}
	}
	return nil
}

func inRating(v int) bool { return v >= MinRating && v <= MaxRating }

func ratingReason() string {
	return fmt.Sprintf("must be between %d and %d", MinRating, MaxRating)
}

func categoryReason() string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, string(c))
	}
	return "must be one of " + strings.Join(names, ", ")
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "category":
		return categoryReason()
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "min", "max":
		if fe.Kind() == reflect.Int {
			return ratingReason()
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
