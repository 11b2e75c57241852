// Package llm adapts remote chat-completion and image-generation APIs to
// explicit result values. Clients never return errors: every failure is
// classified so callers can degrade deterministically.
package llm

import (
	"context"
	"errors"

	"github.com/ashureev/medmate/internal/domain"
)

// Status classifies the outcome of a remote call.
type Status int

const (
	// StatusOK means a usable payload was returned.
	StatusOK Status = iota
	// StatusParseFailure means the call completed but the payload was missing or malformed.
	StatusParseFailure
	// StatusTransportFailure means the request failed or the API returned an error.
	StatusTransportFailure
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusParseFailure:
		return "parse_failure"
	case StatusTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Errors carried in results.
var (
	ErrEmptyChoices = errors.New("llm: response has no choices")
	ErrEmptyContent = errors.New("llm: response content is empty")
	ErrEmptyImage   = errors.New("llm: response has no image data")
)

// ChatResult is the outcome of a chat completion.
type ChatResult struct {
	Status Status
	Text   string
	Model  string
	Err    error
}

// OK reports whether the result carries reply text.
func (r ChatResult) OK() bool { return r.Status == StatusOK }

// ImageResult is the outcome of an image generation.
type ImageResult struct {
	Status Status
	Data   []byte
	Err    error
}

// OK reports whether the result carries image bytes.
func (r ImageResult) OK() bool { return r.Status == StatusOK }

// ChatClient sends an ordered transcript and returns the model's reply.
type ChatClient interface {
	Complete(ctx context.Context, transcript []domain.Message) ChatResult
}

// ImageClient turns a text prompt into image bytes.
type ImageClient interface {
	Generate(ctx context.Context, prompt string) ImageResult
}

func chatTransportFailure(err error) ChatResult {
	return ChatResult{Status: StatusTransportFailure, Err: err}
}

func chatParseFailure(err error) ChatResult {
	return ChatResult{Status: StatusParseFailure, Err: err}
}

func imageTransportFailure(err error) ImageResult {
	return ImageResult{Status: StatusTransportFailure, Err: err}
}

func imageParseFailure(err error) ImageResult {
	return ImageResult{Status: StatusParseFailure, Err: err}
}
