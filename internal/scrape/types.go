// Package scrape defines the core pipeline types shared across subsystems:
// the extracted candidate bundle, the accepted project record, and the
// evaluation result produced by the eligibility filter.
package scrape

import (
	"context"
	"time"
)

// ProjectRecord is an accepted investment project. Once stored, a record is
// never re-evaluated or mutated by a later run; AdjustedYield is fixed at the
// moment of acceptance.
type ProjectRecord struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Classification string    `json:"classification"`
	Rating         string    `json:"rating"`
	CreditScore    *float64  `json:"credit_score,omitempty"`
	Interest       float64   `json:"interest"`
	AdjustedYield  float64   `json:"adjusted_yield"`
	TermMonths     int       `json:"term_months"`
	Link           string    `json:"link,omitempty"`
	FoundAt        time.Time `json:"found_at"`
}

// RawFields is one loosely typed project block pulled from the listing page.
// Every value is trimmed text exactly as published; numeric conversion is the
// filter's concern so that a malformed field surfaces as a single Malformed
// outcome instead of a half-built record.
type RawFields struct {
	ID             string
	Link           string
	Title          string
	Classification string
	Rating         string
	Interest       string
	Credit         string
	Duration       string
}

// RejectReason labels an expected filtering outcome. Reasons are mutually
// exclusive and reported in check order: rating first, then classification,
// then yield.
type RejectReason string

// Rejection reasons, in evaluation order.
const (
	ReasonIneligibleRating       RejectReason = "ineligible_rating"
	ReasonExcludedClassification RejectReason = "excluded_classification"
	ReasonBelowYieldThreshold    RejectReason = "below_yield_threshold"
)

// Outcome classifies the result of evaluating one candidate.
type Outcome string

// Evaluation outcomes.
const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeMalformed Outcome = "malformed"
)

// Evaluation is the per-candidate filter result. Record is populated only for
// OutcomeAccepted, Reason only for OutcomeRejected, and Err only for
// OutcomeMalformed.
type Evaluation struct {
	Outcome Outcome
	Record  ProjectRecord
	Reason  RejectReason
	Err     error
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher retrieves the listing page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Notifier announces a newly accepted project. Implementations make exactly
// one attempt per record; failures are for the caller to log, never to retry.
type Notifier interface {
	Notify(ctx context.Context, record ProjectRecord) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
