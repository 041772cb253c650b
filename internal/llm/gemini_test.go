package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validAnalysisJSON = `{
	"faceShape": "Oval",
	"suggestions": [
		{"name": "Textured Crop", "description": "Short on the sides.", "reasoning": "Balances the proportions."},
		{"name": "Side Part", "description": "Classic side-parted cut.", "reasoning": "Works with most oval faces."},
		{"name": "Pompadour", "description": "Volume on top.", "reasoning": "Adds height."},
		{"name": "Buzz Cut", "description": "Uniform short length.", "reasoning": "Shows off symmetry."},
		{"name": "Curtain Bangs", "description": "Longer fringe parted in the middle.", "reasoning": "Softens the forehead."}
	]
}`

func TestParseFaceAnalysis(t *testing.T) {
	analysis, err := parseFaceAnalysis(validAnalysisJSON)
	require.NoError(t, err)
	assert.Equal(t, "Oval", analysis.FaceShape)
	require.Len(t, analysis.Suggestions, 5)
	assert.Equal(t, "Textured Crop", analysis.Suggestions[0].Name)
	assert.Equal(t, "Softens the forehead.", analysis.Suggestions[4].Reasoning)
}

func TestParseFaceAnalysis_MarkdownWrapped(t *testing.T) {
	wrapped := "```json\n" + validAnalysisJSON + "\n```"
	analysis, err := parseFaceAnalysis(wrapped)
	require.NoError(t, err)
	assert.Equal(t, "Oval", analysis.FaceShape)
}

func TestParseFaceAnalysis_NoJSON(t *testing.T) {
	_, err := parseFaceAnalysis("I could not detect a face in these photos.")
	assert.Error(t, err)
}

func TestParseFaceAnalysis_WrongSuggestionCount(t *testing.T) {
	truncated := `{
		"faceShape": "Round",
		"suggestions": [
			{"name": "Crop", "description": "Short.", "reasoning": "Fits."}
		]
	}`
	_, err := parseFaceAnalysis(truncated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 5 suggestions")
}

func TestParseFaceAnalysis_MissingFaceShape(t *testing.T) {
	noShape := strings.Replace(validAnalysisJSON, `"Oval"`, `""`, 1)
	_, err := parseFaceAnalysis(noShape)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing face shape")
}

func TestValidateFaceAnalysis_EmptySuggestionField(t *testing.T) {
	analysis := &FaceAnalysis{
		FaceShape: "Square",
		Suggestions: []Suggestion{
			{Name: "A", Description: "d", Reasoning: "r"},
			{Name: "B", Description: "d", Reasoning: "r"},
			{Name: "C", Description: "", Reasoning: "r"},
			{Name: "D", Description: "d", Reasoning: "r"},
			{Name: "E", Description: "d", Reasoning: "r"},
		},
	}
	err := validateFaceAnalysis(analysis)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suggestion 2")
}

func TestExtractJSONObject(t *testing.T) {
	out, err := extractJSONObject("noise before {\"a\": 1} noise after")
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, out)
}

func TestCalculateGeminiCost(t *testing.T) {
	// 1M input at $0.50 + 1M output at $3.00
	cost := calculateGeminiCost(1_000_000, 1_000_000, 0.50, 3.00)
	assert.InDelta(t, 3.50, cost, 0.0001)

	assert.Equal(t, 0.0, calculateGeminiCost(0, 0, 0.50, 3.00))
}
