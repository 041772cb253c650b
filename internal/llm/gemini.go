package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const geminiModel = "gemini-3-flash-preview"

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion  = 0.50 // $0.50 per 1M input tokens (text/image/video)
	geminiOutputPricePerMillion = 3.00 // $3.00 per 1M output tokens (including thinking)
)

const faceAnalysisPrompt = `You are a professional hair stylist. The three photos show the same person's face from the front, from the left and from the right, in that order.

Determine the person's face shape (for example Oval, Round, Square, Heart, Oblong or Diamond) and suggest exactly 5 hairstyles that would suit this face shape and the person's hair texture as visible in the photos.

For each suggestion provide:
- name: a short hairstyle name
- description: 1-2 sentences describing the cut and how it is styled
- reasoning: 1-2 sentences on why it works for this face shape

Base the suggestions only on what is visible in the photos.`

// faceAnalysisSchema constrains the response to the expected shape:
// a face shape label plus suggestion objects with all three text fields.
var faceAnalysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"faceShape": {
			Type:        genai.TypeString,
			Description: "The detected face shape, e.g. Oval, Square, Heart.",
		},
		"suggestions": {
			Type:        genai.TypeArray,
			Description: "Exactly 5 hairstyle suggestions.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":        {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
					"reasoning":   {Type: genai.TypeString},
				},
				Required:         []string{"name", "description", "reasoning"},
				PropertyOrdering: []string{"name", "description", "reasoning"},
			},
		},
	},
	Required:         []string{"faceShape", "suggestions"},
	PropertyOrdering: []string{"faceShape", "suggestions"},
}

// GeminiAnalyzer uses Google's Gemini API for face shape analysis.
type GeminiAnalyzer struct {
	client *genai.Client
}

// NewGeminiAnalyzer creates a new Gemini-based analyzer.
// It uses the GEMINI_API_KEY environment variable for authentication.
func NewGeminiAnalyzer(ctx context.Context) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiAnalyzer{client: client}, nil
}

// AnalyzeFace implements the Analyzer interface using Gemini.
// It issues exactly one request with the three photos in front/left/right
// order and a structured-output schema constraint. There are no retries.
func (g *GeminiAnalyzer) AnalyzeFace(ctx context.Context, images [][]byte) (*AnalysisResult, error) {
	if len(images) != CaptureCount {
		return nil, fmt.Errorf("expected %d images (front, left, right), got %d", CaptureCount, len(images))
	}

	parts := []*genai.Part{
		genai.NewPartFromText(faceAnalysisPrompt),
	}
	for _, imgData := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: imgData, MIMEType: "image/jpeg"},
		})
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   faceAnalysisSchema,
	}

	result, err := g.client.Models.GenerateContent(ctx, geminiModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("face analysis failed: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from Gemini")
	}

	analysis, err := parseFaceAnalysis(result.Text())
	if err != nil {
		return nil, err
	}

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateGeminiCost(usage.InputTokens, usage.OutputTokens, geminiInputPricePerMillion, geminiOutputPricePerMillion)
	}

	log.Info().
		Str("model", geminiModel).
		Str("faceShape", analysis.FaceShape).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("face analysis llm call")

	return &AnalysisResult{Analysis: analysis, Usage: usage}, nil
}

func calculateGeminiCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting. Returns the extracted JSON string or an error.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

func parseFaceAnalysis(text string) (*FaceAnalysis, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}

	var analysis FaceAnalysis
	if err := json.Unmarshal([]byte(jsonStr), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w (response: %s)", err, jsonStr)
	}

	if err := validateFaceAnalysis(&analysis); err != nil {
		return nil, fmt.Errorf("malformed analysis response: %w", err)
	}

	return &analysis, nil
}

// validateFaceAnalysis checks the response contract: a non-empty face shape
// and exactly 5 suggestions with all text fields present.
func validateFaceAnalysis(analysis *FaceAnalysis) error {
	if strings.TrimSpace(analysis.FaceShape) == "" {
		return fmt.Errorf("missing face shape")
	}
	if len(analysis.Suggestions) != 5 {
		return fmt.Errorf("expected 5 suggestions, got %d", len(analysis.Suggestions))
	}
	for i, s := range analysis.Suggestions {
		if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Description) == "" || strings.TrimSpace(s.Reasoning) == "" {
			return fmt.Errorf("suggestion %d has empty fields", i)
		}
	}
	return nil
}
