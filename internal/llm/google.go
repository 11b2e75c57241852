package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/medmate/internal/domain"
	"google.golang.org/genai"
)

const (
	googleDefaultChatModel  = "gemini-2.5-flash"
	googleDefaultImageModel = "imagen-3.0-generate-002"
	googleDefaultTimeout    = 60 * time.Second
)

type googleModelsClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

var newGoogleClient = func(ctx context.Context, cfg *genai.ClientConfig) (*genai.Client, error) {
	return genai.NewClient(ctx, cfg)
}

// GoogleConfig configures the Gemini/Imagen client.
type GoogleConfig struct {
	APIKey      string
	ChatModel   string
	ImageModel  string
	Temperature float64
	Timeout     time.Duration
}

// GoogleClient implements ChatClient and ImageClient with the Gemini API.
type GoogleClient struct {
	models      googleModelsClient
	chatModel   string
	imageModel  string
	temperature float64
	timeout     time.Duration
}

// NewGoogle creates a Gemini API client from cfg.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*GoogleClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("google api key is required")
	}

	client, err := newGoogleClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}

	return newGoogleWithModels(client.Models, cfg), nil
}

func newGoogleWithModels(models googleModelsClient, cfg GoogleConfig) *GoogleClient {
	c := &GoogleClient{
		models:      models,
		chatModel:   cfg.ChatModel,
		imageModel:  cfg.ImageModel,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
	if c.chatModel == "" {
		c.chatModel = googleDefaultChatModel
	}
	if c.imageModel == "" {
		c.imageModel = googleDefaultImageModel
	}
	if c.timeout <= 0 {
		c.timeout = googleDefaultTimeout
	}
	return c
}

// Complete sends the transcript to Gemini. System messages become the
// system instruction; assistant turns map to the model role.
func (c *GoogleClient) Complete(ctx context.Context, transcript []domain.Message) ChatResult {
	contents := make([]*genai.Content, 0, len(transcript))
	var systemParts []string

	for _, msg := range transcript {
		switch msg.Role {
		case domain.RoleSystem:
			if text := strings.TrimSpace(msg.Content); text != "" {
				systemParts = append(systemParts, text)
			}
		case domain.RoleAssistant:
			contents = append(contents, textContent(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, textContent(msg.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return chatParseFailure(fmt.Errorf("at least one user or assistant message is required"))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.temperature)),
	}
	if len(systemParts) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(systemParts, "\n\n")}},
		}
	}

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.models.GenerateContent(callCtx, c.chatModel, contents, config)
	if err != nil {
		return chatTransportFailure(fmt.Errorf("generate content: %w", err))
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return chatParseFailure(ErrEmptyChoices)
	}

	text := visibleText(resp.Candidates[0])
	if strings.TrimSpace(text) == "" {
		return chatParseFailure(ErrEmptyContent)
	}
	return ChatResult{Status: StatusOK, Text: text, Model: c.chatModel}
}

// Generate requests one Imagen image for prompt.
func (c *GoogleClient) Generate(ctx context.Context, prompt string) ImageResult {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.models.GenerateImages(callCtx, c.imageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return imageTransportFailure(fmt.Errorf("generate images: %w", err))
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return imageParseFailure(ErrEmptyImage)
	}

	img := resp.GeneratedImages[0]
	if img == nil || img.Image == nil || len(img.Image.ImageBytes) == 0 {
		return imageParseFailure(ErrEmptyImage)
	}
	return ImageResult{Status: StatusOK, Data: img.Image.ImageBytes}
}

func (c *GoogleClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func textContent(text, role string) *genai.Content {
	return &genai.Content{
		Role:  role,
		Parts: []*genai.Part{{Text: text}},
	}
}

func visibleText(candidate *genai.Candidate) string {
	if candidate == nil || candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

var (
	_ ChatClient  = (*GoogleClient)(nil)
	_ ImageClient = (*GoogleClient)(nil)
)
