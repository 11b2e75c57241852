package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/medmate/internal/domain"
)

// mockPNG is a 1x1 transparent PNG returned by MockClient.Generate.
var mockPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// MockClient is an offline ChatClient and ImageClient for local development.
type MockClient struct{}

// NewMock creates a mock client.
func NewMock() *MockClient {
	return &MockClient{}
}

// Complete returns a canned attending reply shaped by the last user message.
func (m *MockClient) Complete(_ context.Context, transcript []domain.Message) ChatResult {
	if len(transcript) == 0 {
		return chatParseFailure(fmt.Errorf("messages are required"))
	}

	last := transcript[len(transcript)-1]
	lower := strings.ToLower(last.Content)

	var reply string
	switch {
	case strings.Contains(lower, "please conclude"):
		reply = strings.Join([]string{
			"**Final Impression:** a reasonable working picture given what we discussed.",
			"**Most Likely Diagnosis (educational only):** to be confirmed with the data you gathered.",
			"**Clinical Reasoning:** you moved from history to focused exam to targeted tests.",
			"**Other Considerations:** keep two or three alternatives on the list.",
			"**Recommended Next Step (educational only):** confirm with the key test.",
			"**Teaching Pearls:** always re-check vitals; anchor less, re-frame more.",
		}, "\n")
	case strings.Contains(lower, "here is the clinical case"):
		reply = "Thanks for presenting. Here is a simple diagram to orient us. What is the first thing you want to know from the history?"
	default:
		reply = fmt.Sprintf("Good thought. You said %q. What would you look for next on exam?", last.Content)
	}

	return ChatResult{Status: StatusOK, Text: reply, Model: "mock"}
}

// Generate returns a placeholder image.
func (m *MockClient) Generate(context.Context, string) ImageResult {
	return ImageResult{Status: StatusOK, Data: append([]byte(nil), mockPNG...)}
}

var (
	_ ChatClient  = (*MockClient)(nil)
	_ ImageClient = (*MockClient)(nil)
)
