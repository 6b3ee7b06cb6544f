package flow

import (
	"context"
	"fmt"
	"log"

	"personabot/internal/models"
	"personabot/internal/service/ai"
)

// MediaAnalyzer runs one single-shot analysis of a media reference.
type MediaAnalyzer interface {
	Analyze(ctx context.Context, ref string, kind models.MediaKind) (*ai.Analysis, error)
}

// MediaState tracks which media kind the flow is waiting for.
type MediaState struct {
	Kind models.MediaKind
}

// MediaController runs the entitlement-gated analysis flow. Entitlement is
// checked by the caller at flow start; the controller only handles the media
// exchange itself.
type MediaController struct {
	analyzer MediaAnalyzer
	results  ResultStore
}

// NewMediaController builds the controller.
func NewMediaController(analyzer MediaAnalyzer, results ResultStore) *MediaController {
	return &MediaController{analyzer: analyzer, results: results}
}

// Begin opens the flow for one media kind and prompts for the upload.
func (c *MediaController) Begin(kind models.MediaKind) (*MediaState, models.Response, error) {
	var prompt string
	switch kind {
	case models.MediaPhoto:
		prompt = msgMediaPromptPhoto
	case models.MediaVideo:
		prompt = msgMediaPromptVideo
	case models.MediaVoice:
		prompt = msgMediaPromptVoice
	default:
		return nil, models.Response{}, fmt.Errorf("unsupported media kind: %s", kind)
	}
	return &MediaState{Kind: kind}, models.Response{Text: prompt, RequiresFollowup: true}, nil
}

// Media analyzes one upload. A kind other than the one the flow was opened
// for is ignored without changing state. The analyzer runs at most once per
// flow: done is true after the attempt whether it succeeded or not.
func (c *MediaController) Media(ctx context.Context, userID int64, st *MediaState, kind models.MediaKind, ref string) (models.Response, bool, error) {
	if st == nil {
		return models.Response{}, false, fmt.Errorf("%w: nil media state", ErrInvariant)
	}
	if kind != st.Kind {
		return models.Response{}, false, nil
	}

	analysis, err := c.analyzer.Analyze(ctx, ref, kind)
	if err != nil {
		log.Printf("media analysis failed for user %d: %v", userID, err)
		return models.Response{Text: msgMediaFailed}, true, nil
	}
	if err := c.results.SaveAnalysis(ctx, userID, kind, ref, analysis); err != nil {
		log.Printf("save analysis failed for user %d: %v", userID, err)
		return models.Response{Text: msgMediaFailed}, true, nil
	}
	return models.Response{Text: analysis.Summary}, true, nil
}
