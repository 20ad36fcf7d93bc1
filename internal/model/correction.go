package model

import "time"

// Correction records a user overriding a categorisation.
type Correction struct {
	CreatedAt           time.Time `json:"created_at"`
	OriginalCategoryID  *string   `json:"original_category_id,omitempty"`
	ImportSessionID     *string   `json:"import_session_id,omitempty"`
	RuleID              *string   `json:"rule_id,omitempty"`
	ID                  string    `json:"id"`
	Description         string    `json:"description"`
	CorrectedCategoryID string    `json:"corrected_category_id"`
	OriginalSource      Source    `json:"original_source"`
	Processed           bool      `json:"processed"`
}

// PatternSuggestion is a candidate rule derived from recurring corrections.
type PatternSuggestion struct {
	Pattern            string    `json:"pattern"`
	MatchType          MatchType `json:"match_type"`
	CategoryID         string    `json:"category_id"`
	CategoryName       string    `json:"category_name"`
	SampleDescriptions []string  `json:"sample_descriptions"`
	CorrectionIDs      []string  `json:"correction_ids"`
	CorrectionCount    int       `json:"correction_count"`
	Confidence         float64   `json:"confidence"`
}
