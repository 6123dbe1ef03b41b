package validation

import (
	"context"
	"fmt"
	"math"

	"AltPull/internal/domain/errs"
	"AltPull/internal/domain/models"
)

// Expectation is one column-level data quality rule.
type Expectation struct {
	Name   string
	Column string
	Min    *float64
	Max    *float64
}

func bound(v float64) *float64 { return &v }

// DefaultExpectations returns the range expectations for a kind.
func DefaultExpectations(kind models.Kind) []Expectation {
	switch kind {
	case models.KindNews:
		return []Expectation{
			{Name: "expect_column_values_to_be_between", Column: "sentiment_score", Min: bound(-1), Max: bound(1)},
			{Name: "expect_column_values_to_be_greater_than_or_equal_to", Column: "news_volume", Min: bound(0)},
		}
	case models.KindOnChain:
		return []Expectation{
			{Name: "expect_column_values_to_be_greater_than_or_equal_to", Column: "onchain_active_addresses", Min: bound(0)},
			{Name: "expect_column_values_to_be_greater_than_or_equal_to", Column: "onchain_tx_volume", Min: bound(0)},
		}
	default:
		return nil
	}
}

// ExpectationChecker evaluates expectations over a slice and reports per-expectation results.
type ExpectationChecker struct {
	overrides map[models.Kind][]Expectation
}

// NewExpectationChecker uses DefaultExpectations unless overrides name a kind.
func NewExpectationChecker(overrides map[models.Kind][]Expectation) *ExpectationChecker {
	return &ExpectationChecker{overrides: overrides}
}

func (c *ExpectationChecker) Enabled() bool { return true }

// Check evaluates every expectation; the report passes only if all do.
func (c *ExpectationChecker) Check(_ context.Context, slice *models.DataSlice) (*models.QualityReport, error) {
	kind := slice.Meta.Kind
	if kind == "" && slice.Len() > 0 {
		kind = slice.Records[0].Kind()
	}
	expectations, ok := c.overrides[kind]
	if !ok {
		expectations = DefaultExpectations(kind)
	}

	columns := kind.Columns()
	colIndex := make(map[string]int, len(columns))
	for i, name := range columns {
		colIndex[name] = i
	}

	passed := true
	results := make([]map[string]interface{}, 0, len(expectations))
	for _, exp := range expectations {
		idx, ok := colIndex[exp.Column]
		if !ok {
			return nil, fmt.Errorf("expectation %s: unknown column %q for kind %s", exp.Name, exp.Column, kind)
		}
		unexpected := 0
		for _, rec := range slice.Records {
			v := rec.Values()[idx]
			if math.IsNaN(v) || (exp.Min != nil && v < *exp.Min) || (exp.Max != nil && v > *exp.Max) {
				unexpected++
			}
		}
		success := unexpected == 0
		passed = passed && success
		results = append(results, map[string]interface{}{
			"expectation":      exp.Name,
			"column":           exp.Column,
			"success":          success,
			"unexpected_count": unexpected,
			"element_count":    slice.Len(),
		})
	}

	return &models.QualityReport{
		Passed:    passed,
		Supported: true,
		Details:   map[string]interface{}{"results": results, "evaluated": len(expectations)},
	}, nil
}

// DisabledQualityChecker reports quality checks as unsupported in this deployment.
type DisabledQualityChecker struct{}

func (DisabledQualityChecker) Enabled() bool { return false }

func (DisabledQualityChecker) Check(context.Context, *models.DataSlice) (*models.QualityReport, error) {
	report := &models.QualityReport{
		Passed:    false,
		Supported: false,
		Details:   map[string]interface{}{"reason": "quality checks disabled"},
	}
	return report, errs.New(errs.KindUnsupported, "", "quality checks are disabled")
}
