// Package similarity finds previously categorised transactions whose descriptions
// resemble a new one.
package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/Veraticus/firetrack/internal/service"
)

const (
	// DefaultLimit is the number of matches returned when the caller passes zero.
	DefaultLimit = 5
	// MinSimilarity is the inclusive acceptance threshold for both search paths.
	MinSimilarity = 0.3
	// fallbackSampleSize is how many recent categorised transactions the token path scans.
	fallbackSampleSize = 500
	// maxTokens bounds the meaningful tokens kept from a description.
	maxTokens = 10
	// minTokenLength drops short fragments such as card suffixes.
	minTokenLength = 3
)

// stopWords is banking boilerplate that carries no merchant signal.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "from": {}, "with": {},
	"payment": {}, "payments": {}, "direct": {}, "debit": {}, "credit": {},
	"card": {}, "visa": {}, "mastercard": {}, "contactless": {}, "purchase": {},
	"pos": {}, "ltd": {}, "limited": {}, "plc": {}, "ref": {}, "reference": {},
	"transfer": {}, "online": {}, "bank": {}, "www": {}, "com": {}, "gbp": {},
	"standing": {}, "order": {}, "faster": {},
}

// Store is the slice of the transaction store the lookup reads from.
type Store interface {
	FindSimilarTransactions(ctx context.Context, description string, minSimilarity float64, maxResults int) ([]service.SimilarRow, error)
	RecentCategorisedTransactions(ctx context.Context, limit int) ([]model.Transaction, error)
}

// Match is a categorised transaction resembling the searched description.
type Match struct {
	Date          time.Time `json:"date"`
	TransactionID string    `json:"transaction_id"`
	Description   string    `json:"description"`
	CategoryID    string    `json:"category_id"`
	CategoryName  string    `json:"category_name"`
	Similarity    float64   `json:"similarity"`
}

// CategoryVote is the category most represented among a set of matches.
type CategoryVote struct {
	CategoryID    string  `json:"category_id"`
	CategoryName  string  `json:"category_name"`
	Count         int     `json:"count"`
	AvgSimilarity float64 `json:"avg_similarity"`
}

// Lookup searches categorised history. The store's trigram search is tried first;
// if it fails, a token-overlap scan over recent transactions is used instead.
type Lookup struct {
	store  Store
	logger *slog.Logger
}

// NewLookup creates a similarity lookup over store.
func NewLookup(store Store, logger *slog.Logger) *Lookup {
	return &Lookup{store: store, logger: common.LoggerOrDefault(logger)}
}

// FindSimilarTransactions returns up to limit matches ordered by descending similarity.
// An error is returned only when both search paths fail.
func (l *Lookup) FindSimilarTransactions(ctx context.Context, description string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if strings.TrimSpace(description) == "" {
		return nil, nil
	}

	rows, err := l.store.FindSimilarTransactions(ctx, description, MinSimilarity, limit)
	if err == nil {
		matches := make([]Match, 0, len(rows))
		for _, r := range rows {
			matches = append(matches, Match{
				Date:          r.Date,
				TransactionID: r.TransactionID,
				Description:   r.Description,
				CategoryID:    r.CategoryID,
				CategoryName:  r.CategoryName,
				Similarity:    r.Similarity,
			})
		}
		return matches, nil
	}

	l.logger.Warn("trigram search failed, using token overlap", "error", err)
	return l.fallback(ctx, description, limit)
}

func (l *Lookup) fallback(ctx context.Context, description string, limit int) ([]Match, error) {
	query := Tokenize(description)
	if len(query) == 0 {
		return nil, nil
	}

	recent, err := l.store.RecentCategorisedTransactions(ctx, fallbackSampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load categorised transactions: %w", err)
	}

	var matches []Match
	for _, txn := range recent {
		if !txn.IsCategorised() {
			continue
		}
		score := TokenSimilarity(query, Tokenize(txn.Description))
		if !Accept(score) {
			continue
		}
		matches = append(matches, Match{
			Date:          txn.Date,
			TransactionID: txn.ID,
			Description:   txn.Description,
			CategoryID:    *txn.CategoryID,
			CategoryName:  txn.CategoryName,
			Similarity:    score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Accept reports whether score clears the inclusive similarity threshold.
func Accept(score float64) bool {
	return score >= MinSimilarity
}

// Tokenize lowercases s, splits it on anything that is not a letter or digit and
// keeps the first ten tokens that are at least three characters long and not stop words.
func Tokenize(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, maxTokens)
	for _, w := range words {
		if len([]rune(w)) < minTokenLength {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		tokens = append(tokens, w)
		if len(tokens) == maxTokens {
			break
		}
	}
	return tokens
}

// TokenSimilarity scores two token lists as (2*exact + partial) / (len(a) + len(b)),
// capped at 1. A token of a counts as exact when b contains it, otherwise as
// partial when it contains, or is contained by, some token of b.
func TokenSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}

	exact, partial := 0, 0
	for _, t := range a {
		if _, ok := set[t]; ok {
			exact++
			continue
		}
		for _, u := range b {
			if strings.Contains(t, u) || strings.Contains(u, t) {
				partial++
				break
			}
		}
	}

	score := float64(2*exact+partial) / float64(len(a)+len(b))
	if score > 1 {
		return 1
	}
	return score
}

// GetMostCommonCategory returns the category shared by the most matches, breaking
// ties by higher average similarity. It returns nil for no matches.
func GetMostCommonCategory(matches []Match) *CategoryVote {
	if len(matches) == 0 {
		return nil
	}

	type tally struct {
		name  string
		count int
		sum   float64
	}
	order := make([]string, 0, len(matches))
	tallies := make(map[string]*tally)
	for _, m := range matches {
		t, ok := tallies[m.CategoryID]
		if !ok {
			t = &tally{name: m.CategoryName}
			tallies[m.CategoryID] = t
			order = append(order, m.CategoryID)
		}
		t.count++
		t.sum += m.Similarity
	}

	var best *CategoryVote
	for _, id := range order {
		t := tallies[id]
		vote := &CategoryVote{
			CategoryID:    id,
			CategoryName:  t.name,
			Count:         t.count,
			AvgSimilarity: t.sum / float64(t.count),
		}
		if best == nil ||
			vote.Count > best.Count ||
			(vote.Count == best.Count && vote.AvgSimilarity > best.AvgSimilarity) {
			best = vote
		}
	}
	return best
}
