package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylelab/telegram-stylist-bot/internal/storage"
)

// memoryCacheStore implements the analysis cache part of storage.SessionStore
// in memory.
type memoryCacheStore struct {
	storage.SessionStore
	entries map[string]*storage.AnalysisCacheEntry
}

func newMemoryCacheStore() *memoryCacheStore {
	return &memoryCacheStore{entries: make(map[string]*storage.AnalysisCacheEntry)}
}

func (m *memoryCacheStore) GetAnalysisCache(imageHash string) (*storage.AnalysisCacheEntry, error) {
	return m.entries[imageHash], nil
}

func (m *memoryCacheStore) SetAnalysisCache(imageHash string, entry *storage.AnalysisCacheEntry) error {
	m.entries[imageHash] = entry
	return nil
}

// countingAnalyzer returns a fixed analysis and counts calls.
type countingAnalyzer struct {
	calls  int
	result *AnalysisResult
}

func (c *countingAnalyzer) AnalyzeFace(ctx context.Context, images [][]byte) (*AnalysisResult, error) {
	c.calls++
	return c.result, nil
}

func testAnalysisResult() *AnalysisResult {
	return &AnalysisResult{
		Analysis: &FaceAnalysis{
			FaceShape: "Oval",
			Suggestions: []Suggestion{
				{Name: "Crop", Description: "d", Reasoning: "r"},
				{Name: "Side Part", Description: "d", Reasoning: "r"},
				{Name: "Pompadour", Description: "d", Reasoning: "r"},
				{Name: "Buzz", Description: "d", Reasoning: "r"},
				{Name: "Fringe", Description: "d", Reasoning: "r"},
			},
		},
		Usage: Usage{InputTokens: 1000, OutputTokens: 500, TotalTokens: 1500, CostUSD: 0.002},
	}
}

func TestHashImages(t *testing.T) {
	a := [][]byte{[]byte("front"), []byte("left"), []byte("right")}
	b := [][]byte{[]byte("front"), []byte("left"), []byte("right")}
	assert.Equal(t, hashImages(a), hashImages(b))

	// Order matters
	c := [][]byte{[]byte("right"), []byte("left"), []byte("front")}
	assert.NotEqual(t, hashImages(a), hashImages(c))

	// Length prefix prevents boundary collisions
	d := [][]byte{[]byte("fr"), []byte("ontleft"), []byte("right")}
	assert.NotEqual(t, hashImages(a), hashImages(d))
}

func TestCachedAnalyzer_MissThenHit(t *testing.T) {
	inner := &countingAnalyzer{result: testAnalysisResult()}
	store := newMemoryCacheStore()
	cached := NewCachedAnalyzer(inner, store)

	images := [][]byte{[]byte("front"), []byte("left"), []byte("right")}

	// First call hits the inner analyzer and populates the cache
	first, err := cached.AnalyzeFace(context.Background(), images)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "Oval", first.Analysis.FaceShape)
	assert.Equal(t, int64(1500), first.Usage.TotalTokens)

	// Second call with the same photos resolves from cache
	second, err := cached.AnalyzeFace(context.Background(), images)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "cache hit should not call inner analyzer")
	assert.Equal(t, "Oval", second.Analysis.FaceShape)
	require.Len(t, second.Analysis.Suggestions, 5)
	assert.Equal(t, "Pompadour", second.Analysis.Suggestions[2].Name)
	assert.Equal(t, Usage{}, second.Usage, "cached result has zero usage")

	// Different photos miss the cache
	other := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	_, err = cached.AnalyzeFace(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedAnalyzer_NilStorePassesThrough(t *testing.T) {
	inner := &countingAnalyzer{result: testAnalysisResult()}
	cached := NewCachedAnalyzer(inner, nil)

	images := [][]byte{[]byte("front"), []byte("left"), []byte("right")}
	_, err := cached.AnalyzeFace(context.Background(), images)
	require.NoError(t, err)
	_, err = cached.AnalyzeFace(context.Background(), images)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
