// ABOUTME: OpenAI image generation client that turns page prompts into PNG bytes.
// ABOUTME: Requests base64 payloads so images never depend on short-lived download URLs.

package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultImageModel is used when no image model is configured.
const DefaultImageModel = "dall-e-3"

// ErrNoImage is returned when the provider answers without image data.
var ErrNoImage = errors.New("image response contained no data")

// ImageClient generates illustrations through the OpenAI Images API. It
// satisfies engine.Illustrator.
type ImageClient struct {
	client openai.Client
	model  string
	size   openai.ImageGenerateParamsSize
}

// NewImageClient creates an image client. An empty baseURL targets api.openai.com.
func NewImageClient(apiKey, model, baseURL string, extra ...option.RequestOption) *ImageClient {
	if model == "" {
		model = DefaultImageModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	return &ImageClient{
		client: openai.NewClient(opts...),
		model:  model,
		size:   openai.ImageGenerateParamsSize1024x1024,
	}
}

// Illustrate generates one image for prompt and returns the decoded bytes.
func (c *ImageClient) Illustrate(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(c.model),
		N:              openai.Int(1),
		Size:           c.size,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, ErrNoImage
	}
	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
