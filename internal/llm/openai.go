package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/medmate/internal/domain"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	openAIDefaultAPIURL     = "https://api.openai.com/v1"
	openAIDefaultChatModel  = "gpt-4o-mini"
	openAIDefaultImageModel = "dall-e-3"
	openAIDefaultImageSize  = "1024x1024"
	openAIDefaultTimeout    = 60 * time.Second
)

// OpenAIConfig configures the OpenAI client.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	ImageModel  string
	ImageSize   string
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// OpenAIClient implements ChatClient and ImageClient against the OpenAI API.
type OpenAIClient struct {
	client      openai.Client
	chatModel   string
	imageModel  string
	imageSize   string
	temperature float64
}

// NewOpenAI creates a client from cfg. The SDK's automatic retries are
// disabled: a failed call is reported once and the turn degrades.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIDefaultAPIURL
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = openAIDefaultChatModel
	}
	imageModel := cfg.ImageModel
	if imageModel == "" {
		imageModel = openAIDefaultImageModel
	}
	imageSize := cfg.ImageSize
	if imageSize == "" {
		imageSize = openAIDefaultImageSize
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = openAIDefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &OpenAIClient{
		client:      client,
		chatModel:   chatModel,
		imageModel:  imageModel,
		imageSize:   imageSize,
		temperature: cfg.Temperature,
	}, nil
}

// Complete sends the transcript to the chat completions endpoint.
func (c *OpenAIClient) Complete(ctx context.Context, transcript []domain.Message) ChatResult {
	if len(transcript) == 0 {
		return chatParseFailure(fmt.Errorf("messages are required"))
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript))
	for _, msg := range transcript {
		param, err := toChatMessageParam(msg)
		if err != nil {
			return chatParseFailure(err)
		}
		messages = append(messages, param)
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.chatModel),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return chatTransportFailure(fmt.Errorf("chat completion: %w", err))
	}

	if len(resp.Choices) == 0 {
		return chatParseFailure(ErrEmptyChoices)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return chatParseFailure(ErrEmptyContent)
	}

	return ChatResult{Status: StatusOK, Text: content, Model: resp.Model}
}

// Generate requests a single base64-encoded image for prompt.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) ImageResult {
	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(c.imageModel),
		Size:   openai.ImageGenerateParamsSize(c.imageSize),
		N:      openai.Int(1),
	}
	// gpt-image models always return base64 and reject response_format.
	if !strings.HasPrefix(c.imageModel, "gpt-image") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	resp, err := c.client.Images.Generate(ctx, params)
	if err != nil {
		return imageTransportFailure(fmt.Errorf("image generation: %w", err))
	}

	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return imageParseFailure(ErrEmptyImage)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return imageParseFailure(fmt.Errorf("decode image data: %w", err))
	}
	return ImageResult{Status: StatusOK, Data: data}
}

func toChatMessageParam(msg domain.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case domain.RoleSystem:
		return openai.SystemMessage(msg.Content), nil
	case domain.RoleUser:
		return openai.UserMessage(msg.Content), nil
	case domain.RoleAssistant:
		return openai.AssistantMessage(msg.Content), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported role: %s", msg.Role)
	}
}

var (
	_ ChatClient  = (*OpenAIClient)(nil)
	_ ImageClient = (*OpenAIClient)(nil)
)
