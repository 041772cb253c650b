package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// The image model is called over the REST API. The genai SDK is used for the
// text/vision model only; image output is requested with responseModalities,
// which the REST surface exposes directly.
const (
	geminiRenderBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiImageModel    = "gemini-3-pro-image-preview"

	// Gemini image model pricing (per million tokens)
	geminiImageInputPricePerMillion  = 2.00
	geminiImageOutputPricePerMillion = 12.00
)

const renderPrompt = `Give the person in this photo the following hairstyle: %s.
Hairstyle description: %s

Keep the person's facial identity, facial features, pose, skin tone, lighting and background exactly as they are in the photo. Change only the hair. The result must be a photorealistic photograph of the same person.`

// RendererOpts configures a GeminiRenderer.
type RendererOpts struct {
	APIKey  string
	BaseURL string // Defaults to the Gemini REST API base URL. Overridable for tests.
}

// GeminiRenderer synthesizes hairstyle renders with the Gemini image model.
type GeminiRenderer struct {
	httpClient *resty.Client
	apiKey     string
	model      string
}

// NewGeminiRenderer creates a renderer for the Gemini image model.
func NewGeminiRenderer(opts RendererOpts) *GeminiRenderer {
	baseURL := geminiRenderBaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	return &GeminiRenderer{
		httpClient: resty.New().
			SetDebug(false).
			SetBaseURL(baseURL).
			// Image generation can take 10-30s
			SetTimeout(120 * time.Second),
		apiKey: opts.APIKey,
		model:  geminiImageModel,
	}
}

// --- REST request/response types ---

type renderRequest struct {
	Contents         []renderContent         `json:"contents"`
	GenerationConfig *renderGenerationConfig `json:"generationConfig,omitempty"`
}

type renderContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []renderPart `json:"parts"`
}

type renderPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *renderBlob `json:"inlineData,omitempty"`
}

type renderGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type renderBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type renderResponse struct {
	Candidates    []renderCandidate    `json:"candidates"`
	UsageMetadata *renderUsageMetadata `json:"usageMetadata,omitempty"`
	Error         *renderError         `json:"error,omitempty"`
}

type renderCandidate struct {
	Content renderContent `json:"content"`
}

type renderUsageMetadata struct {
	PromptTokenCount     int64 `json:"promptTokenCount"`
	CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	TotalTokenCount      int64 `json:"totalTokenCount"`
}

type renderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// RenderHairstyle implements the Renderer interface. It issues exactly one
// request with the base photo and a templated instruction, and returns the
// first inline image found among the response parts. No retries.
func (r *GeminiRenderer) RenderHairstyle(ctx context.Context, baseImage []byte, styleName, styleDescription string) (*RenderResult, error) {
	startTime := time.Now()

	req := renderRequest{
		Contents: []renderContent{
			{
				Role: "user",
				Parts: []renderPart{
					{
						InlineData: &renderBlob{
							MIMEType: "image/jpeg",
							Data:     base64.StdEncoding.EncodeToString(baseImage),
						},
					},
					{Text: fmt.Sprintf(renderPrompt, styleName, styleDescription)},
				},
			},
		},
		GenerationConfig: &renderGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	var resp renderResponse
	res, err := r.httpClient.R().
		SetContext(ctx).
		SetQueryParam("key", r.apiKey).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(fmt.Sprintf("/models/%s:generateContent", r.model))
	if err != nil {
		return nil, fmt.Errorf("render request failed: %w", err)
	}
	if res.IsError() {
		if resp.Error != nil {
			return nil, fmt.Errorf("render API error: %s (code %d)", resp.Error.Message, resp.Error.Code)
		}
		return nil, fmt.Errorf("render API returned status %d", res.StatusCode())
	}

	// The response may interleave text and image parts; the first inline
	// image is the render.
	result := &RenderResult{}
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode render image data: %w", err)
			}
			result.ImageData = decoded
			result.MIMEType = part.InlineData.MIMEType
			break
		}
		if result.ImageData != nil {
			break
		}
	}

	if result.ImageData == nil {
		return nil, fmt.Errorf("no image in render response")
	}

	if resp.UsageMetadata != nil {
		result.Usage = Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
			CostUSD: calculateGeminiCost(
				resp.UsageMetadata.PromptTokenCount,
				resp.UsageMetadata.CandidatesTokenCount,
				geminiImageInputPricePerMillion,
				geminiImageOutputPricePerMillion,
			),
		}
	}

	log.Info().
		Str("model", r.model).
		Str("style", styleName).
		Int("outputBytes", len(result.ImageData)).
		Str("outputMime", result.MIMEType).
		Float64("costUSD", result.Usage.CostUSD).
		Dur("duration", time.Since(startTime)).
		Msg("hairstyle render llm call")

	return result, nil
}
