package scrape

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"
)

// FilterConfig holds the eligibility thresholds. Penalties maps a rating
// grade to its risk penalty; grades absent from the map are ineligible.
type FilterConfig struct {
	Penalties  map[string]float64
	CostOffset float64
	MinYield   float64
	// ExcludedClassifications rejects projects whose published classification
	// matches any entry. The check is disabled when the list is empty.
	ExcludedClassifications []string
	// MaxDefaultRating rejects projects whose rating parses as a number above
	// the given default-probability threshold. Zero disables the check.
	MaxDefaultRating float64
	// MinCreditScore rejects projects whose credit score is absent or below
	// the given value. Zero disables the check.
	MinCreditScore float64
}

// DefaultPenalties returns the standard grade-to-penalty table.
func DefaultPenalties() map[string]float64 {
	return map[string]float64{
		"BBB": 1.24,
		"A":   0.62,
		"AA":  0.30,
		"AAA": 0.15,
	}
}

// Filter decides whether a candidate qualifies and derives its adjusted
// yield. Evaluate depends only on the candidate, the configured thresholds
// and the clock used to stamp acceptance time.
type Filter struct {
	cfg   FilterConfig
	clock Clock
}

// NewFilter constructs a Filter. A nil clock falls back to the wall clock.
func NewFilter(cfg FilterConfig, clock Clock) *Filter {
	if cfg.Penalties == nil {
		cfg.Penalties = DefaultPenalties()
	}
	if clock == nil {
		clock = wallClock{}
	}
	return &Filter{cfg: cfg, clock: clock}
}

// Evaluate runs the ordered eligibility checks against one candidate. The
// first failing check wins; a field that cannot be parsed yields a Malformed
// evaluation isolated to this candidate.
func (f *Filter) Evaluate(raw RawFields) Evaluation {
	penalty, graded := f.cfg.Penalties[raw.Rating]
	credit := f.parseCredit(raw.Credit)

	if reason, ok := f.checkRating(raw, graded, credit); !ok {
		return Evaluation{Outcome: OutcomeRejected, Reason: reason}
	}
	if len(f.cfg.ExcludedClassifications) > 0 &&
		slices.Contains(f.cfg.ExcludedClassifications, raw.Classification) {
		return Evaluation{Outcome: OutcomeRejected, Reason: ReasonExcludedClassification}
	}

	interest, err := parseDecimal(raw.Interest)
	if err != nil {
		return Evaluation{Outcome: OutcomeMalformed, Err: fmt.Errorf("interest rate: %w", err)}
	}
	adjusted := round2(interest - f.cfg.CostOffset - penalty)
	if adjusted < f.cfg.MinYield {
		return Evaluation{Outcome: OutcomeRejected, Reason: ReasonBelowYieldThreshold}
	}

	months, err := parseTermMonths(raw.Duration)
	if err != nil {
		return Evaluation{Outcome: OutcomeMalformed, Err: err}
	}

	return Evaluation{
		Outcome: OutcomeAccepted,
		Record: ProjectRecord{
			ID:             raw.ID,
			Title:          raw.Title,
			Classification: raw.Classification,
			Rating:         raw.Rating,
			CreditScore:    credit,
			Interest:       interest,
			AdjustedYield:  adjusted,
			TermMonths:     months,
			Link:           raw.Link,
			FoundAt:        f.clock.Now(),
		},
	}
}

// checkRating applies the rating eligibility rules: table membership always,
// plus the optional numeric default-probability and credit-score variants.
func (f *Filter) checkRating(raw RawFields, graded bool, credit *float64) (RejectReason, bool) {
	if !graded {
		return ReasonIneligibleRating, false
	}
	if f.cfg.MaxDefaultRating > 0 {
		if pd, err := parseDecimal(raw.Rating); err == nil && pd > f.cfg.MaxDefaultRating {
			return ReasonIneligibleRating, false
		}
	}
	if f.cfg.MinCreditScore > 0 {
		if credit == nil || *credit < f.cfg.MinCreditScore {
			return ReasonIneligibleRating, false
		}
	}
	return "", true
}

// parseCredit treats the optional credit-score field as absent when empty or
// unparseable.
func (f *Filter) parseCredit(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := parseDecimal(s)
	if err != nil {
		return nil
	}
	return &v
}

func parseTermMonths(duration string) (int, error) {
	digits, ok := firstDigits(duration)
	if !ok {
		return 0, fmt.Errorf("duration label %q has no digits", duration)
	}
	months, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", duration, err)
	}
	return months, nil
}

// round2 rounds to two decimals, the precision stored and mailed for the
// adjusted yield.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }
