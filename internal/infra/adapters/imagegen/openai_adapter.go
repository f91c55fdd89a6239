package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"canvas-imagegen/internal/domain"
	"canvas-imagegen/internal/domain/ports/adapter"
)

var _ adapter.ImageServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements the image service port over the Images API.
// The generations endpoint takes no reference images, so reference labels
// are folded into the prompt text and the bytes are ignored.
type OpenAIAdapter struct {
	client openai.Client
	model  string
}

func NewOpenAIAdapter(apiKey, model string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-image-1"
	}
	return &OpenAIAdapter{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GeneratedImage, error) {
	prompt := req.Prompt
	if req.AspectRatio != "" {
		prompt = fmt.Sprintf("%s (aspect ratio %s)", prompt, req.AspectRatio)
	}
	var labels []string
	for _, ref := range req.References {
		if ref.Label != "" {
			labels = append(labels, ref.Label)
		}
	}
	if len(labels) > 0 {
		prompt = prompt + ". In the style of: " + strings.Join(labels, ", ")
	}

	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(o.model),
		N:      openai.Int(1),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, domain.ErrEmptyImageResponse
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	return &adapter.GeneratedImage{Data: raw, MimeType: "image/png"}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return fmt.Errorf("%w: %s", domain.ErrRateLimited, apiErr.Message)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("%w (openai %d)", domain.ErrUpstreamUnstable, apiErr.StatusCode)
		}
	}
	return err
}
