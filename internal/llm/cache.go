package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/stylelab/telegram-stylist-bot/internal/storage"
)

// CachedAnalyzer wraps an Analyzer with SQLite caching. Identical photo sets
// (same person, same three captures) resolve without a remote call.
type CachedAnalyzer struct {
	inner Analyzer
	store storage.SessionStore
}

// NewCachedAnalyzer creates a cached analyzer.
func NewCachedAnalyzer(inner Analyzer, store storage.SessionStore) *CachedAnalyzer {
	return &CachedAnalyzer{inner: inner, store: store}
}

// hashImages creates a SHA256 hash from image data.
// Includes length prefix for each image to prevent boundary collisions.
func hashImages(images [][]byte) string {
	h := sha256.New()
	for _, img := range images {
		// Write length to prevent boundary collisions (e.g. [A,B] vs [AB])
		binary.Write(h, binary.LittleEndian, int64(len(img)))
		h.Write(img)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AnalyzeFace implements the Analyzer interface with caching.
func (c *CachedAnalyzer) AnalyzeFace(ctx context.Context, images [][]byte) (*AnalysisResult, error) {
	hash := hashImages(images)

	if c.store != nil {
		cached, err := c.store.GetAnalysisCache(hash)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check analysis cache")
		} else if cached != nil {
			var suggestions []Suggestion
			if err := json.Unmarshal([]byte(cached.SuggestionsJSON), &suggestions); err != nil {
				log.Warn().Err(err).Msg("failed to decode cached suggestions, ignoring cache entry")
			} else {
				log.Debug().Str("hash", hash[:16]).Msg("analysis cache hit")
				return &AnalysisResult{
					Analysis: &FaceAnalysis{
						FaceShape:   cached.FaceShape,
						Suggestions: suggestions,
					},
					Usage: Usage{}, // Zero usage for cached result
				}, nil
			}
		}
	}

	result, err := c.inner.AnalyzeFace(ctx, images)
	if err != nil {
		return nil, err
	}

	if c.store != nil && result.Analysis != nil {
		suggestionsJSON, err := json.Marshal(result.Analysis.Suggestions)
		if err != nil {
			log.Warn().Err(err).Msg("failed to encode suggestions for cache")
			return result, nil
		}
		entry := &storage.AnalysisCacheEntry{
			FaceShape:       result.Analysis.FaceShape,
			SuggestionsJSON: string(suggestionsJSON),
		}
		if err := c.store.SetAnalysisCache(hash, entry); err != nil {
			log.Warn().Err(err).Msg("failed to cache analysis result")
		} else {
			log.Debug().Str("hash", hash[:16]).Msg("cached analysis result")
		}
	}

	return result, nil
}
