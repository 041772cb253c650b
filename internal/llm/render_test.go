package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T, handler http.HandlerFunc) *GeminiRenderer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGeminiRenderer(RendererOpts{APIKey: "test-key", BaseURL: server.URL})
}

func renderResponseJSON(parts []renderPart) []byte {
	resp := renderResponse{
		Candidates: []renderCandidate{
			{Content: renderContent{Parts: parts}},
		},
		UsageMetadata: &renderUsageMetadata{
			PromptTokenCount:     100,
			CandidatesTokenCount: 1290,
			TotalTokenCount:      1390,
		},
	}
	b, _ := json.Marshal(resp)
	return b
}

func TestRenderHairstyle_FirstInlineImageWins(t *testing.T) {
	imageBytes := []byte("fake-png-bytes")
	otherBytes := []byte("second-image")

	var gotPath string
	var gotReq renderRequest
	renderer := newTestRenderer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		w.Write(renderResponseJSON([]renderPart{
			{Text: "Here is your new look:"},
			{InlineData: &renderBlob{MIMEType: "image/png", Data: base64.StdEncoding.EncodeToString(imageBytes)}},
			{InlineData: &renderBlob{MIMEType: "image/png", Data: base64.StdEncoding.EncodeToString(otherBytes)}},
		}))
	})

	result, err := renderer.RenderHairstyle(context.Background(), []byte("base-photo"), "Textured Crop", "Short on the sides.")
	require.NoError(t, err)

	assert.Equal(t, imageBytes, result.ImageData)
	assert.Equal(t, "image/png", result.MIMEType)
	assert.Equal(t, int64(1390), result.Usage.TotalTokens)
	assert.Greater(t, result.Usage.CostUSD, 0.0)

	// Request shape: base photo first, then the templated instruction
	assert.Contains(t, gotPath, ":generateContent")
	require.Len(t, gotReq.Contents, 1)
	require.Len(t, gotReq.Contents[0].Parts, 2)
	assert.NotNil(t, gotReq.Contents[0].Parts[0].InlineData)
	assert.Contains(t, gotReq.Contents[0].Parts[1].Text, "Textured Crop")
	require.NotNil(t, gotReq.GenerationConfig)
	assert.Equal(t, []string{"TEXT", "IMAGE"}, gotReq.GenerationConfig.ResponseModalities)
}

func TestRenderHairstyle_NoImageInResponse(t *testing.T) {
	renderer := newTestRenderer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(renderResponseJSON([]renderPart{
			{Text: "I cannot generate that image."},
		}))
	})

	_, err := renderer.RenderHairstyle(context.Background(), []byte("base-photo"), "Buzz Cut", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image in render response")
}

func TestRenderHairstyle_APIError(t *testing.T) {
	renderer := newTestRenderer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(renderResponse{
			Error: &renderError{Code: 400, Message: "API key not valid", Status: "INVALID_ARGUMENT"},
		})
	})

	_, err := renderer.RenderHairstyle(context.Background(), []byte("base-photo"), "Buzz Cut", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not valid")
}
