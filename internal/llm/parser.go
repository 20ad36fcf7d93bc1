package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Veraticus/firetrack/internal/model"
)

// AIResult is a validated AI categorisation.
type AIResult struct {
	CategoryID   string              `json:"category_id"`
	CategoryName string              `json:"category_name"`
	Reasoning    string              `json:"reasoning"`
	Alternatives []model.Alternative `json:"alternatives,omitempty"`
	Confidence   float64             `json:"confidence"`
}

// rawResult mirrors the requested JSON; pointers detect missing fields.
type rawResult struct {
	Index        *int             `json:"index"`
	CategoryID   *string          `json:"categoryId"`
	CategoryName *string          `json:"categoryName"`
	Confidence   *float64         `json:"confidence"`
	Reasoning    *string          `json:"reasoning"`
	Alternatives []rawAlternative `json:"alternatives"`
}

type rawAlternative struct {
	CategoryID   *string  `json:"categoryId"`
	CategoryName *string  `json:"categoryName"`
	Confidence   *float64 `json:"confidence"`
}

// cleanMarkdownWrapper strips a ```json ... ``` fence and any prose around the JSON value.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)

	if start := strings.Index(content, "```"); start >= 0 {
		rest := content[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			// Drop the language tag line (```json).
			if tag := strings.TrimSpace(rest[:nl]); !strings.ContainsAny(tag, "{[") {
				rest = rest[nl+1:]
			}
		}
		if end := strings.LastIndex(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		content = strings.TrimSpace(rest)
	}

	first := strings.IndexAny(content, "{[")
	if first > 0 {
		content = content[first:]
	}
	if last := strings.LastIndexAny(content, "}]"); last >= 0 && last < len(content)-1 {
		content = content[:last+1]
	}
	return content
}

// parseSingle decodes and validates a single-transaction reply.
func parseSingle(content string) (AIResult, error) {
	var raw rawResult
	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &raw); err != nil {
		return AIResult{}, newError(KindParse, "response is not valid JSON", err)
	}
	return raw.validate()
}

// parseBatch decodes a batch reply. It accepts {"results": [...]} or a bare array.
// Items whose index is missing, out of range, or repeated are rejected as invalid.
func parseBatch(content string, size int) (map[int]AIResult, error) {
	cleaned := cleanMarkdownWrapper(content)

	var items []rawResult
	if strings.HasPrefix(cleaned, "[") {
		if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
			return nil, newError(KindParse, "response is not a valid JSON array", err)
		}
	} else {
		var envelope struct {
			Results []rawResult `json:"results"`
		}
		if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
			return nil, newError(KindParse, "response is not valid JSON", err)
		}
		if envelope.Results == nil {
			return nil, newError(KindInvalidResponse, "response has no results array", nil)
		}
		items = envelope.Results
	}

	results := make(map[int]AIResult, len(items))
	for i, item := range items {
		if item.Index == nil {
			return nil, newError(KindInvalidResponse, fmt.Sprintf("result %d has no index", i), nil)
		}
		idx := *item.Index
		if idx < 0 || idx >= size {
			return nil, newError(KindInvalidResponse, fmt.Sprintf("result index %d out of range", idx), nil)
		}
		if _, dup := results[idx]; dup {
			return nil, newError(KindInvalidResponse, fmt.Sprintf("result index %d repeated", idx), nil)
		}
		r, err := item.validate()
		if err != nil {
			return nil, err
		}
		results[idx] = r
	}
	return results, nil
}

func (r rawResult) validate() (AIResult, error) {
	var missing []string
	if r.CategoryID == nil {
		missing = append(missing, "categoryId")
	}
	if r.CategoryName == nil {
		missing = append(missing, "categoryName")
	}
	if r.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if r.Reasoning == nil {
		missing = append(missing, "reasoning")
	}
	if len(missing) > 0 {
		return AIResult{}, newError(KindInvalidResponse, "missing fields: "+strings.Join(missing, ", "), nil)
	}

	result := AIResult{
		CategoryID:   strings.TrimSpace(*r.CategoryID),
		CategoryName: strings.TrimSpace(*r.CategoryName),
		Confidence:   clamp(*r.Confidence),
		Reasoning:    *r.Reasoning,
	}
	for _, alt := range r.Alternatives {
		if alt.CategoryID == nil || alt.CategoryName == nil || alt.Confidence == nil {
			return AIResult{}, newError(KindInvalidResponse, "alternative is missing fields", nil)
		}
		result.Alternatives = append(result.Alternatives, model.Alternative{
			CategoryID:   strings.TrimSpace(*alt.CategoryID),
			CategoryName: strings.TrimSpace(*alt.CategoryName),
			Confidence:   clamp(*alt.Confidence),
		})
	}
	return result, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
