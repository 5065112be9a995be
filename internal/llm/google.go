package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	googleoption "google.golang.org/api/option"
)

// googleProvider scores a post dump with Gemini. A client is opened per call
// so the caller's context governs the connection.
type googleProvider struct {
	apiKey string
	model  string
}

func newGoogleProvider(model string) (Provider, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: GOOGLE_API_KEY environment variable not set")
	}
	return &googleProvider{apiKey: apiKey, model: model}, nil
}

// postSafety relaxes Gemini's default filters to block only high-harm
// content. The prompt quotes other people's posts verbatim, and the defaults
// refuse ordinary profiles that merely mention heated topics.
var postSafety = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockOnlyHigh},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockOnlyHigh},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockOnlyHigh},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockOnlyHigh},
}

// Complete asks for a JSON reply and joins the text parts of every
// candidate. A blocked prompt or a safety stop is an error, never an empty
// score.
func (p *googleProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	client, err := genai.NewClient(ctx, googleoption.WithAPIKey(p.apiKey))
	if err != nil {
		return "", fmt.Errorf("google: genai client: %w", err)
	}
	defer client.Close()

	m := client.GenerativeModel(p.model)
	m.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	m.SetMaxOutputTokens(int32(maxTokens))
	m.SetTemperature(float32(temperature))
	m.ResponseMIMEType = "application/json"
	m.SafetySettings = postSafety

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("google: score request: %w", err)
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("google: post dump blocked: %s", fb.BlockReason)
	}

	var parts []string
	for _, cand := range resp.Candidates {
		if cand.FinishReason == genai.FinishReasonSafety {
			return "", fmt.Errorf("google: candidate stopped by safety filter")
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				parts = append(parts, string(t))
			}
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("google: response contained no text content")
	}
	return strings.Join(parts, ""), nil
}
