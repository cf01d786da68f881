// Package discovery implements the staged tender discovery pipeline: bulk
// fetch, quick keyword filter, item-level verification, enrichment and
// persistence. Each stage narrows the candidate set so expensive API calls
// are spent only on records the cheap stages could not decide.
package discovery

import (
	"fmt"

	"github.com/sealtrack/pncp-radar/pkg/pncp"
)

// Strategy selects how stage 3 verifies candidates.
type Strategy string

const (
	// StrategySampling fetches a few items per tender and trusts the
	// sampled fraction. Suited to homogeneous tenders.
	StrategySampling Strategy = "sampling"
	// StrategyExhaustive fetches every item of every candidate. Required
	// when one relevant item can hide among hundreds of unrelated ones.
	StrategyExhaustive Strategy = "exhaustive"
)

// ParseStrategy validates a strategy name from config or a flag.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySampling, StrategyExhaustive:
		return Strategy(s), nil
	case "":
		return StrategySampling, nil
	}
	return "", fmt.Errorf("discovery: unknown strategy %q", s)
}

// Partition is one unit of pipeline work: a state and a publication window.
type Partition struct {
	UF     string
	Window pncp.Window
}

func (p Partition) String() string {
	return fmt.Sprintf("%s %s..%s", p.UF, p.Window.StartParam(), p.Window.EndParam())
}

// RecordKey identifies a tender across runs for deduplication.
type RecordKey struct {
	CNPJ       string
	Year       int
	Sequential int
	UF         string
}

// ApprovalReason records which path let a candidate through verification.
type ApprovalReason string

const (
	ReasonHighScore    ApprovalReason = "high_quick_score"
	ReasonTitleMatch   ApprovalReason = "title_strong_match"
	ReasonSampling     ApprovalReason = "item_sampling"
	ReasonOrgTrust     ApprovalReason = "org_trust"
	ReasonItemAnalysis ApprovalReason = "full_item_analysis"
)

// Candidate is a tender moving through the pipeline, accumulating filter
// evidence as it survives each stage.
type Candidate struct {
	pncp.Tender

	QuickScore   float64
	MatchedTerms []string

	Confidence     float64
	ApprovalReason ApprovalReason

	Items         []pncp.Item
	RelevantItems map[int]bool // item number -> matched the vocabulary

	GovernmentLevel GovernmentLevel
	Size            TenderSize
}

// Key returns the candidate's cross-run identity.
func (c Candidate) Key() RecordKey {
	return RecordKey{
		CNPJ:       c.CNPJ(),
		Year:       c.Year,
		Sequential: c.Sequential,
		UF:         c.Unit.UF,
	}
}
