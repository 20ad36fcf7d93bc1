package model

// Source names the strategy that produced a categorisation.
type Source string

// Source constants.
const (
	SourceRuleExact   Source = "rule_exact"
	SourceRulePattern Source = "rule_pattern"
	SourceSimilar     Source = "similar"
	SourceAI          Source = "ai"
	SourceNone        Source = "none"
)

// Alternative is a lower-ranked category candidate.
type Alternative struct {
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Confidence   float64 `json:"confidence"`
}

// CategorisationResult is the engine's verdict for one transaction.
type CategorisationResult struct {
	CategoryID   *string       `json:"category_id"`
	CategoryName *string       `json:"category_name"`
	Source       Source        `json:"source"`
	MatchDetails string        `json:"match_details"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	Confidence   float64       `json:"confidence"`
}

// Uncategorised builds a result with no category and the given reason.
func Uncategorised(details string) CategorisationResult {
	return CategorisationResult{
		Source:       SourceNone,
		Confidence:   0,
		MatchDetails: details,
	}
}

// IsCategorised reports whether the result carries a category.
func (r CategorisationResult) IsCategorised() bool {
	return r.CategoryID != nil
}

// Stats aggregates a set of categorisation results.
type Stats struct {
	BySource       map[Source]int `json:"by_source"`
	Total          int            `json:"total"`
	Categorised    int            `json:"categorised"`
	Uncategorised  int            `json:"uncategorised"`
	HighConfidence int            `json:"high_confidence"`
	LowConfidence  int            `json:"low_confidence"`
	AIUsed         int            `json:"ai_used"`
}
