package llm

import (
	"context"
	"fmt"
	"os"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// xaiBaseURL is the OpenAI-compatible endpoint for Grok models.
const xaiBaseURL = "https://api.x.ai/v1"

// chatProvider scores a post dump through a Chat Completions endpoint. It
// backs both OpenAI and xAI, which speak the same wire protocol.
type chatProvider struct {
	client openai.Client
	model  string
	name   string
	// jsonMode asks the endpoint for a bare JSON object, which is the only
	// shape ValidateAssessment and ValidateCompatibility accept.
	jsonMode bool
}

func newOpenAIProvider(model string) (Provider, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: OPENAI_API_KEY environment variable not set")
	}
	return newChatProvider("openai", apiKey, "", model, true), nil
}

// newXAIProvider targets Grok. XAI_BASE_URL overrides the endpoint.
func newXAIProvider(model string) (Provider, error) {
	apiKey := os.Getenv("XAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: XAI_API_KEY environment variable not set")
	}
	baseURL := os.Getenv("XAI_BASE_URL")
	if baseURL == "" {
		baseURL = xaiBaseURL
	}
	return newChatProvider("xai", apiKey, baseURL, model, false), nil
}

// newChatProvider builds a chatProvider; an empty baseURL keeps the SDK
// default.
func newChatProvider(name, apiKey, baseURL, model string, jsonMode bool) *chatProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &chatProvider{
		client:   openai.NewClient(opts...),
		model:    model,
		name:     name,
		jsonMode: jsonMode,
	}
}

// Complete sends the scoring instructions as the system message and the
// post dump as the user message, returning the first choice's text.
func (p *chatProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	}
	if p.jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s: score request: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: response contained no choices", p.name)
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("%s: model refused to score: %s", p.name, choice.Message.Refusal)
	}
	if choice.Message.Content == "" {
		return "", fmt.Errorf("%s: response contained no content (finish reason %q)", p.name, choice.FinishReason)
	}
	return choice.Message.Content, nil
}
