package model

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// MatchType selects how a rule pattern is compared with a description.
type MatchType string

// Match type constants.
const (
	MatchExact    MatchType = "exact"
	MatchContains MatchType = "contains"
	MatchRegex    MatchType = "regex"
)

// ParseMatchType validates a textual match type.
func ParseMatchType(s string) (MatchType, error) {
	switch mt := MatchType(strings.ToLower(strings.TrimSpace(s))); mt {
	case MatchExact, MatchContains, MatchRegex:
		return mt, nil
	default:
		return "", fmt.Errorf("unknown match type %q", s)
	}
}

// Rule maps a description pattern to a category (the category_mappings table).
type Rule struct {
	CreatedAt    time.Time `json:"created_at"`
	ID           string    `json:"id"`
	Pattern      string    `json:"pattern"`
	CategoryID   string    `json:"category_id"`
	CategoryName string    `json:"category_name,omitempty"`
	MatchType    MatchType `json:"match_type"`
	Notes        string    `json:"notes,omitempty"`
	Confidence   float64   `json:"confidence"`
	IsSystem     bool      `json:"is_system"`
}

// RuleMatch is the outcome of matching a description against the rule set.
type RuleMatch struct {
	Rule       Rule
	CategoryID string
	Confidence float64
	IsExact    bool
}

// RuleUpdate carries the mutable fields of a rule. Nil fields are left unchanged.
type RuleUpdate struct {
	Pattern    *string
	CategoryID *string
	MatchType  *MatchType
	Confidence *float64
	Notes      *string
}

// Apply returns a copy of r with the update applied.
func (u RuleUpdate) Apply(r Rule) Rule {
	if u.Pattern != nil {
		r.Pattern = *u.Pattern
	}
	if u.CategoryID != nil {
		r.CategoryID = *u.CategoryID
	}
	if u.MatchType != nil {
		r.MatchType = *u.MatchType
	}
	if u.Confidence != nil {
		r.Confidence = *u.Confidence
	}
	if u.Notes != nil {
		r.Notes = *u.Notes
	}
	return r
}

// NormalizeDescription folds a description for case-insensitive comparison.
// Compatibility forms are folded first so that full-width and ligature characters
// found in some bank exports compare equal to their plain equivalents.
func NormalizeDescription(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}
