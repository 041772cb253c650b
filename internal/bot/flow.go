package bot

import (
	"fmt"

	"github.com/stylelab/telegram-stylist-bot/internal/llm"
)

// FlowState is the state of a styling attempt.
type FlowState int

const (
	StateIdle FlowState = iota
	StateCapturing
	StatePreview
	StateAnalyzing
	StateSelection
	StateGenerating
	StateResults
	StateError
)

func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StatePreview:
		return "preview"
	case StateAnalyzing:
		return "analyzing"
	case StateSelection:
		return "selection"
	case StateGenerating:
		return "generating"
	case StateResults:
		return "results"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MaxSelections is the maximum number of suggestions a user can pick for
// generation.
const MaxSelections = 2

// flowTransitions lists the allowed state transitions. Reset (any state back
// to Idle) is handled separately in Flow.Reset.
var flowTransitions = map[FlowState][]FlowState{
	StateIdle:       {StateCapturing},
	StateCapturing:  {StatePreview, StateError},
	StatePreview:    {StateCapturing, StateAnalyzing},
	StateAnalyzing:  {StateSelection, StateError},
	StateSelection:  {StateGenerating},
	StateGenerating: {StateResults, StateError},
	StateResults:    {},
	StateError:      {},
}

// GeneratedLook is one synthesized hairstyle image for the active attempt.
type GeneratedLook struct {
	StyleName string
	ImageData []byte
	MIMEType  string
}

// ImageBuffer holds the capture photos in fixed order: front, left, right.
type ImageBuffer struct {
	images [][]byte
}

// Add appends a photo at the next slot and returns the new count.
// Adding past the third slot is rejected.
func (b *ImageBuffer) Add(img []byte) (int, error) {
	if len(b.images) >= llm.CaptureCount {
		return len(b.images), fmt.Errorf("image buffer is full")
	}
	b.images = append(b.images, img)
	return len(b.images), nil
}

// Count returns the number of captured photos.
func (b *ImageBuffer) Count() int {
	return len(b.images)
}

// Full reports whether all three photos have been captured.
func (b *ImageBuffer) Full() bool {
	return len(b.images) == llm.CaptureCount
}

// Images returns the photos in front/left/right order.
func (b *ImageBuffer) Images() [][]byte {
	return b.images
}

// Front returns the front photo, or nil if not captured yet.
func (b *ImageBuffer) Front() []byte {
	if len(b.images) == 0 {
		return nil
	}
	return b.images[0]
}

// NextAngle returns the name of the angle expected next, or "" when full.
func (b *ImageBuffer) NextAngle() string {
	if b.Full() {
		return ""
	}
	return llm.CaptureAngles[len(b.images)]
}

// Clear empties the buffer.
func (b *ImageBuffer) Clear() {
	b.images = nil
}

// Flow holds all state for one styling attempt. It is owned by the session
// worker goroutine and must not be accessed from other goroutines.
type Flow struct {
	State        FlowState
	Attempt      int // attempt token; bumped on every reset
	Buffer       ImageBuffer
	Analysis     *llm.FaceAnalysis
	Selection    []int
	Looks        []GeneratedLook
	ErrorMessage string
}

// transition moves the flow to the given state after validating that the
// transition is allowed from the current state.
func (f *Flow) transition(to FlowState) error {
	for _, allowed := range flowTransitions[f.State] {
		if allowed == to {
			f.State = to
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s", f.State, to)
}

// fail moves the flow to the terminal Error state with a message.
// Error is reachable from every state.
func (f *Flow) fail(message string) {
	f.State = StateError
	f.ErrorMessage = message
}

// Reset returns the flow to Idle, clears all accumulated data and bumps the
// attempt token so completions of in-flight calls are recognized as stale.
func (f *Flow) Reset() {
	f.State = StateIdle
	f.Attempt++
	f.Buffer.Clear()
	f.Analysis = nil
	f.Selection = nil
	f.Looks = nil
	f.ErrorMessage = ""
}

// ToggleSelection adds or removes a suggestion index from the selection set.
// Toggling an already-selected index removes it. Adding a third selection or
// an out-of-range index is a rejected no-op; the return value reports whether
// the set changed.
func (f *Flow) ToggleSelection(i int) bool {
	if f.Analysis == nil || i < 0 || i >= len(f.Analysis.Suggestions) {
		return false
	}
	for pos, sel := range f.Selection {
		if sel == i {
			f.Selection = append(f.Selection[:pos], f.Selection[pos+1:]...)
			return true
		}
	}
	if len(f.Selection) >= MaxSelections {
		return false
	}
	f.Selection = append(f.Selection, i)
	return true
}

// IsSelected reports whether a suggestion index is in the selection set.
func (f *Flow) IsSelected(i int) bool {
	for _, sel := range f.Selection {
		if sel == i {
			return true
		}
	}
	return false
}

// SelectedSuggestions returns the selected suggestions in selection order.
func (f *Flow) SelectedSuggestions() []llm.Suggestion {
	if f.Analysis == nil {
		return nil
	}
	suggestions := make([]llm.Suggestion, 0, len(f.Selection))
	for _, i := range f.Selection {
		suggestions = append(suggestions, f.Analysis.Suggestions[i])
	}
	return suggestions
}
