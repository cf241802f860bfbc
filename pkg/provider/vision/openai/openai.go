// Package openai provides a vision.Captioner backed by the OpenAI chat
// completions API, sending frames as base64 data-URL image attachments.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/guardline/guardline/pkg/provider/vision"
)

// Compile-time assertion that Captioner satisfies vision.Captioner.
var _ vision.Captioner = (*Captioner)(nil)

const defaultMaxTokens = 512

// Captioner implements vision.Captioner using an OpenAI vision-capable
// chat model (gpt-4o and friends).
type Captioner struct {
	client    oai.Client
	model     string
	maxTokens int64
}

// config holds optional configuration for the captioner.
type config struct {
	baseURL   string
	timeout   time.Duration
	maxTokens int64
}

// Option is a functional option for Captioner.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, which allows
// pointing the captioner at an OpenAI-compatible local server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxTokens caps the caption length in completion tokens. Defaults to 512.
func WithMaxTokens(n int) Option {
	return func(c *config) {
		c.maxTokens = int64(n)
	}
}

// New constructs a new OpenAI-backed Captioner.
func New(apiKey string, model string, opts ...Option) (*Captioner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{maxTokens: defaultMaxTokens}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Captioner{
		client:    oai.NewClient(reqOpts...),
		model:     model,
		maxTokens: cfg.maxTokens,
	}, nil
}

// Caption implements vision.Captioner. The image bytes are embedded in the
// request as a base64 data URL alongside the instruction prompt.
func (c *Captioner) Caption(ctx context.Context, image []byte, prompt string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("openai: image must not be empty")
	}

	dataURL := "data:" + detectMIME(image) + ";base64," +
		base64.StdEncoding.EncodeToString(image)

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(prompt),
				oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
		MaxCompletionTokens: param.NewOpt(c.maxTokens),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// detectMIME sniffs the image container from its magic bytes. Frames are
// persisted as JPEG, so that is the fallback.
func detectMIME(image []byte) string {
	if len(image) >= 8 && string(image[1:4]) == "PNG" {
		return "image/png"
	}
	return "image/jpeg"
}
