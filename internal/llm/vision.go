package llm

import "context"

// CaptureCount is the number of photos required for a face analysis:
// front, left and right, in that order.
const CaptureCount = 3

// Angle names for the three capture slots, in buffer order.
var CaptureAngles = [CaptureCount]string{"front", "left", "right"}

// Suggestion is one proposed hairstyle for the analyzed face.
type Suggestion struct {
	Name        string `json:"name"`        // Short hairstyle name, e.g. "Textured Crop"
	Description string `json:"description"` // Visual description of the cut
	Reasoning   string `json:"reasoning"`   // Why it suits the detected face shape
}

// FaceAnalysis is the structured result of analyzing the three capture photos.
type FaceAnalysis struct {
	FaceShape   string       `json:"faceShape"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Usage contains token usage and cost information for one LLM call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// AnalysisResult contains the face analysis and usage information.
type AnalysisResult struct {
	Analysis *FaceAnalysis
	Usage    Usage
}

// Analyzer can classify a face from three photos and suggest hairstyles.
type Analyzer interface {
	// AnalyzeFace takes exactly three images (front, left, right) and returns
	// the face shape plus five hairstyle suggestions. The call is
	// all-or-nothing: a missing or malformed response yields an error and no
	// partial result.
	AnalyzeFace(ctx context.Context, images [][]byte) (*AnalysisResult, error)
}

// RenderResult contains one synthesized hairstyle image.
type RenderResult struct {
	ImageData []byte
	MIMEType  string
	Usage     Usage
}

// Renderer can synthesize a photo of the user wearing a given hairstyle.
type Renderer interface {
	// RenderHairstyle takes the base (front) photo and a hairstyle
	// name/description and returns the first inline image the model produced.
	RenderHairstyle(ctx context.Context, baseImage []byte, styleName, styleDescription string) (*RenderResult, error)
}
