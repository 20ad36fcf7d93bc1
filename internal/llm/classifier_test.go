package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeCategories struct {
	err   error
	cats  []model.Category
	calls int
}

func (f *fakeCategories) GetCategories(_ context.Context) ([]model.Category, error) {
	f.calls++
	return f.cats, f.err
}

type fakeUsage struct {
	err    error
	counts map[string]int
	mu     sync.Mutex
}

func newFakeUsage() *fakeUsage {
	return &fakeUsage{counts: make(map[string]int)}
}

func (f *fakeUsage) key(day time.Time, usageType string) string {
	return day.Format("2006-01-02") + "/" + usageType
}

func (f *fakeUsage) GetUsage(_ context.Context, day time.Time, usageType string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[f.key(day, usageType)], nil
}

func (f *fakeUsage) IncrementUsage(_ context.Context, day time.Time, usageType string, by int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[f.key(day, usageType)] += by
	return nil
}

var testCategories = []model.Category{
	{ID: "cat-groceries", Name: "Groceries", GroupName: "Food"},
	{ID: "cat-eating-out", Name: "Eating Out", GroupName: "Food"},
	{ID: "cat-salary", Name: "Salary", GroupName: "Income", IsIncome: true},
	{ID: "cat-entertainment", Name: "Entertainment", GroupName: "Leisure"},
}

var testDay = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestClassifier(t *testing.T, client Client, usage *fakeUsage) *Classifier {
	t.Helper()
	tracker := NewUsageTracker(usage, 100, nil).WithClock(func() time.Time { return testDay })
	return NewClassifier(client, &fakeCategories{cats: testCategories}, tracker, ClassifierConfig{
		Timeout: 50 * time.Millisecond,
		Retry:   common.RetryOptions{InitialDelay: time.Millisecond},
	}, nil)
}

func testTxn(desc string) model.Transaction {
	return model.Transaction{ID: "t-" + desc, Description: desc, Amount: decimal.RequireFromString("-12.50"), Date: testDay}
}

func singleReply(id, name string, confidence float64) string {
	return fmt.Sprintf(`{"categoryId":%q,"categoryName":%q,"confidence":%v,"reasoning":"looks right"}`, id, name, confidence)
}

func TestClassifier_CategoriseWithAI(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	usage := newFakeUsage()
	c := newTestClassifier(t, client, usage)

	client.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, prompt string) (string, error) {
		assert.Contains(t, prompt, "Salary [INCOME] (id: cat-salary)")
		assert.Contains(t, prompt, "SAINSBURYS")
		return "```json\n" + `{"categoryId":"cat-groceries","categoryName":"groceries","confidence":0.9,"reasoning":"supermarket",` +
			`"alternatives":[{"categoryId":"cat-eating-out","categoryName":"Eating Out","confidence":0.2},` +
			`{"categoryId":"cat-unknown","categoryName":"Unknown","confidence":0.1}]}` + "\n```", nil
	})

	r, err := c.CategoriseWithAI(context.Background(), testTxn("SAINSBURYS LONDON"))
	require.NoError(t, err)
	assert.Equal(t, "cat-groceries", r.CategoryID)
	assert.Equal(t, "Groceries", r.CategoryName)
	assert.InDelta(t, 0.9, r.Confidence, 1e-9)
	require.Len(t, r.Alternatives, 1)
	assert.Equal(t, "cat-eating-out", r.Alternatives[0].CategoryID)

	avail := c.CheckAIAvailability(context.Background())
	assert.Equal(t, 99, avail.Remaining)
	assert.Equal(t, 1, avail.Used)
}

func TestClassifier_ResolvesCategory(t *testing.T) {
	tests := []struct {
		name           string
		reply          string
		wantID         string
		wantName       string
		wantConfidence float64
	}{
		{"known id", singleReply("cat-entertainment", "Fun", 0.85), "cat-entertainment", "Entertainment", 0.85},
		{"unknown id matched by name", singleReply("entertainment", "ENTERTAINMENT", 0.85), "cat-entertainment", "Entertainment", 0.85},
		{"outside taxonomy is capped", singleReply("cat-x", "Crypto", 0.95), "cat-x", "Crypto", 0.3},
		{"low confidence outside taxonomy kept", singleReply("cat-x", "Crypto", 0.2), "cat-x", "Crypto", 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewMockClient(gomock.NewController(t))
			client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(tt.reply, nil)

			r, err := newTestClassifier(t, client, newFakeUsage()).CategoriseWithAI(context.Background(), testTxn("NETFLIX"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, r.CategoryID)
			assert.Equal(t, tt.wantName, r.CategoryName)
			assert.InDelta(t, tt.wantConfidence, r.Confidence, 1e-9)
		})
	}
}

func TestClassifier_ParseErrorRetriedOnce(t *testing.T) {
	t.Run("second attempt succeeds", func(t *testing.T) {
		client := NewMockClient(gomock.NewController(t))
		gomock.InOrder(
			client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("not json at all", nil),
			client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(singleReply("cat-groceries", "Groceries", 0.7), nil),
		)

		r, err := newTestClassifier(t, client, newFakeUsage()).CategoriseWithAI(context.Background(), testTxn("TESCO"))
		require.NoError(t, err)
		assert.Equal(t, "cat-groceries", r.CategoryID)
	})

	t.Run("both attempts fail", func(t *testing.T) {
		client := NewMockClient(gomock.NewController(t))
		client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("still not json", nil).Times(2)

		usage := newFakeUsage()
		_, err := newTestClassifier(t, client, usage).CategoriseWithAI(context.Background(), testTxn("TESCO"))
		require.Error(t, err)
		assert.Equal(t, KindParse, KindOf(err))
		assert.Empty(t, usage.counts)
	})
}

func TestClassifier_ErrorsNotRetried(t *testing.T) {
	tests := []struct {
		name     string
		complete func(ctx context.Context, prompt string) (string, error)
		kind     ErrorKind
	}{
		{
			name: "rate limited",
			complete: func(context.Context, string) (string, error) {
				return "", fmt.Errorf("anthropic API error (status 429): %w", common.ErrRateLimit)
			},
			kind: KindRateLimited,
		},
		{
			name: "timeout",
			complete: func(ctx context.Context, _ string) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
			kind: KindTimeout,
		},
		{
			name: "api error",
			complete: func(context.Context, string) (string, error) {
				return "", errors.New("connection refused")
			},
			kind: KindAPI,
		},
		{
			name: "invalid response",
			complete: func(context.Context, string) (string, error) {
				return `{"categoryId":"cat-groceries"}`, nil
			},
			kind: KindInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewMockClient(gomock.NewController(t))
			client.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(tt.complete).Times(1)

			_, err := newTestClassifier(t, client, newFakeUsage()).CategoriseWithAI(context.Background(), testTxn("AMAZON"))
			require.Error(t, err)

			var aiErr *Error
			require.ErrorAs(t, err, &aiErr)
			assert.Equal(t, tt.kind, aiErr.Kind)
		})
	}
}

func batchReply(offset, n int) string {
	items := make([]string, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, fmt.Sprintf(`{"index":%d,"categoryId":"cat-groceries","categoryName":"Groceries","confidence":0.%d,"reasoning":"txn %d"}`,
			i, 5+(offset+i)%4, offset+i))
	}
	return `{"results":[` + strings.Join(items, ",") + `]}`
}

func TestClassifier_CategoriseBatchWithAI(t *testing.T) {
	client := NewMockClient(gomock.NewController(t))
	usage := newFakeUsage()
	c := newTestClassifier(t, client, usage)

	txns := make([]model.Transaction, 23)
	for i := range txns {
		txns[i] = testTxn(fmt.Sprintf("SHOP %02d", i))
	}

	var sizes []int
	client.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, prompt string) (string, error) {
		n := strings.Count(prompt, "Description:")
		offset := 0
		for _, s := range sizes {
			offset += s
		}
		sizes = append(sizes, n)
		return batchReply(offset, n), nil
	}).Times(3)

	results, err := c.CategoriseBatchWithAI(context.Background(), txns)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 10, 3}, sizes)
	require.Len(t, results, 23)
	for i := range txns {
		assert.Equal(t, fmt.Sprintf("txn %d", i), results[i].Reasoning, "index %d", i)
	}

	assert.Equal(t, 23, c.CheckAIAvailability(context.Background()).Used)
}

func TestClassifier_BatchChunkFailureFailsBatch(t *testing.T) {
	client := NewMockClient(gomock.NewController(t))
	usage := newFakeUsage()
	c := newTestClassifier(t, client, usage)

	txns := make([]model.Transaction, 15)
	for i := range txns {
		txns[i] = testTxn(fmt.Sprintf("SHOP %02d", i))
	}

	gomock.InOrder(
		client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(batchReply(0, 10), nil),
		client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("", fmt.Errorf("status 429: %w", common.ErrRateLimit)),
	)

	results, err := c.CategoriseBatchWithAI(context.Background(), txns)
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Nil(t, results, "a failed chunk fails the whole batch")
	assert.Equal(t, 10, c.CheckAIAvailability(context.Background()).Used)
}

func TestClassifier_EmptyBatch(t *testing.T) {
	client := NewMockClient(gomock.NewController(t))
	results, err := newTestClassifier(t, client, newFakeUsage()).CategoriseBatchWithAI(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClassifier_CategoryCache(t *testing.T) {
	client := NewMockClient(gomock.NewController(t))
	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(singleReply("cat-groceries", "Groceries", 0.8), nil).Times(3)

	cats := &fakeCategories{cats: testCategories}
	c := NewClassifier(client, cats, nil, ClassifierConfig{}, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := c.CategoriseWithAI(ctx, testTxn("TESCO"))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, cats.calls)

	c.InvalidateCategories()
	_, err := c.CategoriseWithAI(ctx, testTxn("TESCO"))
	require.NoError(t, err)
	assert.Equal(t, 2, cats.calls)
}

func TestClassifier_NoCategories(t *testing.T) {
	client := NewMockClient(gomock.NewController(t))
	c := NewClassifier(client, &fakeCategories{err: errors.New("db down")}, nil, ClassifierConfig{}, nil)

	_, err := c.CategoriseWithAI(context.Background(), testTxn("TESCO"))
	require.Error(t, err)
	assert.Equal(t, KindAPI, KindOf(err))
}

func TestUsageTracker(t *testing.T) {
	usage := newFakeUsage()
	tracker := NewUsageTracker(usage, 12, nil).WithClock(func() time.Time { return testDay })
	ctx := context.Background()

	avail := tracker.CheckAIAvailability(ctx)
	assert.True(t, avail.Available)
	assert.Equal(t, 12, avail.Remaining)

	tracker.Record(ctx, 7)
	avail = tracker.CheckAIAvailability(ctx)
	assert.Equal(t, 5, avail.Remaining)
	assert.True(t, avail.Fits(5))
	assert.False(t, avail.Fits(6))

	tracker.Record(ctx, 9)
	avail = tracker.CheckAIAvailability(ctx)
	assert.False(t, avail.Available)
	assert.Zero(t, avail.Remaining)

	usage.err = errors.New("db down")
	assert.False(t, tracker.CheckAIAvailability(ctx).Available)
}
