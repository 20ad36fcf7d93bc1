package learning_test

import (
	"context"
	"testing"

	"github.com/Veraticus/firetrack/internal/learning"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/Veraticus/firetrack/internal/rules"
	"github.com/Veraticus/firetrack/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db      *testutil.TestDB
	matcher *rules.Matcher
	loop    *learning.Loop
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	matcher := rules.NewMatcher(db.Storage, rules.DefaultCacheTTL, nil)
	manager := rules.NewManager(db.Storage, db.Storage, matcher, nil)
	return fixture{
		db:      db,
		matcher: matcher,
		loop:    learning.NewLoop(db.Storage, manager, db.Storage, 0, nil),
	}
}

func correction(desc, categoryID string) model.Correction {
	return model.Correction{Description: desc, CorrectedCategoryID: categoryID, OriginalSource: model.SourceAI}
}

func TestLoop_RecordCorrection(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	takeaway := f.db.MustCategoryID("Takeaway")

	saved, err := f.loop.RecordCorrection(ctx, correction("DELIVEROO LONDON", takeaway))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.Processed)

	batch, err := f.loop.RecordCorrectionsBatch(ctx, []model.Correction{
		correction("deliveroo london ", takeaway),
		correction("JUST EAT", takeaway),
	})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	history, err := f.loop.GetCorrectionsForDescription(ctx, "Deliveroo London")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = f.loop.RecordCorrection(ctx, correction("NO CATEGORY", ""))
	assert.Error(t, err)
}

func TestLoop_AnalyseCorrections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	takeaway := f.db.MustCategoryID("Takeaway")
	taxis := f.db.MustCategoryID("Taxis")
	eatingOut := f.db.MustCategoryID("Eating Out")
	taxes := f.db.MustCategoryID("Taxes")

	_, err := f.loop.RecordCorrectionsBatch(ctx, []model.Correction{
		correction("DELIVEROO LONDON", takeaway),
		correction("DELIVEROO LONDON", takeaway),
		correction("DELIVEROO LONDON", takeaway),
		correction("Uber Trip", taxis),
		correction("UBER TRIP", taxis),
		correction("uber trip", eatingOut),
		correction("SPOTIFY", eatingOut),
		correction("HMRC", taxes),
		correction("hmrc", taxes),
	})
	require.NoError(t, err)

	has, n := f.loop.CheckForSuggestions(ctx)
	assert.True(t, has)

	suggestions, err := f.loop.AnalyseCorrections(ctx)
	require.NoError(t, err)
	require.Len(t, suggestions, 2, "hmrc is already covered by a system rule")
	assert.Equal(t, len(suggestions), n, "the hint counts the same groups the analysis proposes")

	deliveroo := suggestions[0]
	assert.Equal(t, "deliveroo london", deliveroo.Pattern)
	assert.Equal(t, model.MatchExact, deliveroo.MatchType)
	assert.Equal(t, takeaway, deliveroo.CategoryID)
	assert.Equal(t, "Takeaway", deliveroo.CategoryName)
	assert.Equal(t, 3, deliveroo.CorrectionCount)
	assert.InDelta(t, 0.9, deliveroo.Confidence, 1e-9)
	assert.Len(t, deliveroo.CorrectionIDs, 3)
	assert.Equal(t, []string{"DELIVEROO LONDON"}, deliveroo.SampleDescriptions)

	uber := suggestions[1]
	assert.Equal(t, "uber trip", uber.Pattern)
	assert.Equal(t, model.MatchContains, uber.MatchType)
	assert.Equal(t, taxis, uber.CategoryID)
	assert.Equal(t, 2, uber.CorrectionCount)
	assert.InDelta(t, 0.53, uber.Confidence, 1e-9, "0.8 scaled by two of three agreeing")
}

func TestLoop_CreateRuleFromSuggestion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	takeaway := f.db.MustCategoryID("Takeaway")

	_, err := f.loop.RecordCorrectionsBatch(ctx, []model.Correction{
		correction("DELIVEROO LONDON", takeaway),
		correction("DELIVEROO LONDON", takeaway),
	})
	require.NoError(t, err)

	assert.Nil(t, f.matcher.MatchRule(ctx, "DELIVEROO LONDON"))

	suggestions, err := f.loop.AnalyseCorrections(ctx)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	rule, err := f.loop.CreateRuleFromSuggestion(ctx, suggestions[0])
	require.NoError(t, err)
	assert.Equal(t, "deliveroo london", rule.Pattern)
	assert.Equal(t, "Takeaway", rule.CategoryName)
	assert.False(t, rule.IsSystem)

	m := f.matcher.MatchRule(ctx, "Deliveroo London")
	require.NotNil(t, m)
	assert.Equal(t, rule.ID, m.Rule.ID)

	has, n := f.loop.CheckForSuggestions(ctx)
	assert.False(t, has)
	assert.Zero(t, n)

	remaining, err := f.loop.AnalyseCorrections(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	history, err := f.loop.GetCorrectionsForDescription(ctx, "DELIVEROO LONDON")
	require.NoError(t, err)
	for _, c := range history {
		assert.True(t, c.Processed)
		require.NotNil(t, c.RuleID)
		assert.Equal(t, rule.ID, *c.RuleID)
	}

	_, err = f.loop.CreateRuleFromSuggestion(ctx, suggestions[0])
	assert.Error(t, err, "creating the same rule twice is rejected")
}

func TestLoop_ManualRuleClearsHint(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	takeaway := f.db.MustCategoryID("Takeaway")

	_, err := f.loop.RecordCorrectionsBatch(ctx, []model.Correction{
		correction("JUST EAT", takeaway),
		correction("JUST EAT", takeaway),
	})
	require.NoError(t, err)

	has, n := f.loop.CheckForSuggestions(ctx)
	require.True(t, has)
	require.Equal(t, 1, n)

	f.db.MustAddRule("just eat", model.MatchExact, takeaway, 1.0)

	has, n = f.loop.CheckForSuggestions(ctx)
	assert.False(t, has)
	assert.Zero(t, n)

	suggestions, err := f.loop.AnalyseCorrections(ctx)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestLoop_MinCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	matcher := rules.NewMatcher(db.Storage, 0, nil)
	loop := learning.NewLoop(db.Storage, rules.NewManager(db.Storage, db.Storage, matcher, nil), db.Storage, 3, nil)
	takeaway := db.MustCategoryID("Takeaway")

	_, err := loop.RecordCorrectionsBatch(ctx, []model.Correction{
		correction("JUST EAT", takeaway),
		correction("JUST EAT", takeaway),
	})
	require.NoError(t, err)

	suggestions, err := loop.AnalyseCorrections(ctx)
	require.NoError(t, err)
	assert.Empty(t, suggestions)

	has, _ := loop.CheckForSuggestions(ctx)
	assert.False(t, has)
}

// unusedRules satisfies RuleCreator for tests that never reach it.
type unusedRules struct {
	learning.RuleCreator
}

func TestLoop_CheckForSuggestionsStoreFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	require.NoError(t, db.Storage.Close())

	loop := learning.NewLoop(db.Storage, unusedRules{}, nil, 0, nil)
	has, n := loop.CheckForSuggestions(context.Background())
	assert.False(t, has)
	assert.Zero(t, n)

	_, err := loop.AnalyseCorrections(context.Background())
	assert.Error(t, err)
}
