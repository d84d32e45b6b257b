package enrich

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai"
)

const analyzePrompt = `Analyze the following text and provide:
1. A concise summary (max 2 sentences)
2. A single category that best describes the content (e.g., Personal, Work, Shopping, Ideas, etc.)

Text: %s

Respond in JSON format:
{
    "summary": "...",
    "category": "..."
}`

const analyzeSystemPrompt = "You are a helpful assistant that analyzes voice notes."

// OpenAIConfig holds OpenAI service configuration.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	TranscribeModel string
	AnalyzeModel    string
}

// OpenAIService implements Service against the OpenAI API: Whisper for
// transcription and a chat model for summary/category extraction.
type OpenAIService struct {
	client          *openai.Client
	transcribeModel string
	analyzeModel    string
}

// NewOpenAIService creates an OpenAI-backed enrichment service. BaseURL is
// optional and exists so tests can point the client at a local server.
func NewOpenAIService(cfg OpenAIConfig) *OpenAIService {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	transcribeModel := cfg.TranscribeModel
	if transcribeModel == "" {
		transcribeModel = openai.Whisper1
	}
	analyzeModel := cfg.AnalyzeModel
	if analyzeModel == "" {
		analyzeModel = openai.GPT3Dot5Turbo
	}

	return &OpenAIService{
		client:          openai.NewClientWithConfig(clientCfg),
		transcribeModel: transcribeModel,
		analyzeModel:    analyzeModel,
	}
}

// Transcribe sends the audio as a multipart upload and returns the raw
// transcript text.
func (s *OpenAIService) Transcribe(ctx context.Context, audio []byte) (string, error) {
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.transcribeModel,
		FilePath: "audio.m4a",
		Reader:   bytes.NewReader(audio),
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}

	transcript := strings.TrimSpace(resp.Text)
	if transcript == "" {
		return "", fmt.Errorf("empty transcript: %w", ErrInvalidResponse)
	}
	return transcript, nil
}

// Analyze asks the chat model for a summary and category of the transcript.
// The model is instructed to answer with a JSON object {summary, category}.
func (s *OpenAIService) Analyze(ctx context.Context, transcript string) (Analysis, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.analyzeModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analyzeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(analyzePrompt, transcript)},
		},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("analysis request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Analysis{}, fmt.Errorf("no response choices: %w", ErrInvalidResponse)
	}

	var analysis Analysis
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return Analysis{}, fmt.Errorf("decode analysis payload: %w", ErrInvalidResponse)
	}
	if analysis.Summary == "" || analysis.Category == "" {
		return Analysis{}, fmt.Errorf("incomplete analysis payload: %w", ErrInvalidResponse)
	}
	return analysis, nil
}
