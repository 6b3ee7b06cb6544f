package ai

import (
	"context"
	"errors"
	"fmt"

	"personabot/internal/models"

	goopenai "github.com/sashabaranov/go-openai"
)

const visionPrompt = "Analyze this image from a personality-typing " +
	"perspective. Describe the likely personality type, its characteristic " +
	"traits, quadra, and role. Be detailed and professional."

const transcriptPrompt = "You are an expert in psychology and personality " +
	"typing. Analyze the text and determine the likely personality type, " +
	"characteristic traits, quadra, and role."

// Analysis is the outcome of one media analysis.
type Analysis struct {
	Summary    string `json:"summary"`
	Transcript string `json:"transcript,omitempty"`
	Model      string `json:"model"`
}

// Analyzer runs single-shot media analysis: vision for photo and video
// frames, transcription plus completion for voice.
type Analyzer struct {
	client *goopenai.Client
}

// NewAnalyzer builds the analyzer with the OpenAI key.
func NewAnalyzer(apiKey string) (*Analyzer, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key required")
	}
	return &Analyzer{client: goopenai.NewClient(apiKey)}, nil
}

// Analyze inspects the media reference exactly once and returns the result.
// ref is the transport-resolved location: a URL for photo/video, a local
// file path for voice.
func (a *Analyzer) Analyze(ctx context.Context, ref string, kind models.MediaKind) (*Analysis, error) {
	if ref == "" {
		return nil, errors.New("media reference required")
	}
	switch kind {
	case models.MediaPhoto, models.MediaVideo:
		return a.analyzeVisual(ctx, ref)
	case models.MediaVoice:
		return a.analyzeVoice(ctx, ref)
	default:
		return nil, fmt.Errorf("unsupported media kind: %s", kind)
	}
}

func (a *Analyzer) analyzeVisual(ctx context.Context, ref string) (*Analysis, error) {
	resp, err := a.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: goopenai.GPT4o,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role: goopenai.ChatMessageRoleUser,
				MultiContent: []goopenai.ChatMessagePart{
					{Type: goopenai.ChatMessagePartTypeText, Text: visionPrompt},
					{
						Type:     goopenai.ChatMessagePartTypeImageURL,
						ImageURL: &goopenai.ChatMessageImageURL{URL: ref},
					},
				},
			},
		},
		MaxTokens: 1000,
	})
	if err != nil {
		return nil, fmt.Errorf("vision analysis: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("vision analysis returned no choices")
	}
	return &Analysis{Summary: resp.Choices[0].Message.Content, Model: goopenai.GPT4o}, nil
}

func (a *Analyzer) analyzeVoice(ctx context.Context, ref string) (*Analysis, error) {
	transcript, err := a.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    goopenai.Whisper1,
		FilePath: ref,
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe voice: %w", err)
	}

	resp, err := a.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: goopenai.GPT4o,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: transcriptPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: "Analyze this text: " + transcript.Text},
		},
		MaxTokens: 800,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze transcript: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("transcript analysis returned no choices")
	}
	return &Analysis{
		Summary:    resp.Choices[0].Message.Content,
		Transcript: transcript.Text,
		Model:      goopenai.Whisper1 + "+" + goopenai.GPT4o,
	}, nil
}
