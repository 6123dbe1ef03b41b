package validation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"AltPull/internal/domain/models"
)

// SchemaValidator checks every record of a slice against its canonical struct tags
// and collects all violations instead of stopping at the first.
type SchemaValidator struct {
	validate *validator.Validate
}

// NewSchemaValidator builds a validator that reports fields by their JSON names.
func NewSchemaValidator() *SchemaValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &SchemaValidator{validate: v}
}

// Validate returns a report listing every violation in slice.
func (s *SchemaValidator) Validate(ctx context.Context, slice *models.DataSlice) models.ValidationReport {
	var problems []string
	if slice == nil {
		return models.ValidationReport{Passed: false, Errors: []string{"no data slice"}}
	}

	var prev time.Time
	for i, rec := range slice.Records {
		where := fmt.Sprintf("row %d (%s)", i, rec.Time().UTC().Format(time.RFC3339))

		if slice.Meta.Kind != "" && rec.Kind() != slice.Meta.Kind {
			problems = append(problems, fmt.Sprintf("%s: record kind %s does not match slice kind %s", where, rec.Kind(), slice.Meta.Kind))
		}
		if i > 0 && !rec.Time().After(prev) {
			problems = append(problems, fmt.Sprintf("%s: timestamp not strictly after previous row", where))
		}
		prev = rec.Time()

		for c, v := range rec.Values() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				problems = append(problems, fmt.Sprintf("%s: %s is not a finite number", where, rec.Kind().Columns()[c]))
			}
		}

		if err := s.validate.StructCtx(ctx, rec); err != nil {
			problems = append(problems, describe(where, err)...)
		}
	}

	return models.ValidationReport{Passed: len(problems) == 0, Errors: problems}
}

func describe(where string, err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{fmt.Sprintf("%s: %v", where, err)}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s: %s", where, message(fe)))
	}
	return out
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", field, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be <= %s, got %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
