// File: internal/infra/adapters/imagegen/gemini_adapter.go
package imagegen

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"canvas-imagegen/internal/domain"
	"canvas-imagegen/internal/domain/ports/adapter"
)

var _ adapter.ImageServiceAdapter = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client *genai.Client
	model  string
}

// NewGeminiAdapter creates a Gemini image adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, model string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, model: model}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

func (g *GeminiAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GeneratedImage, error) {
	prompt := req.Prompt
	if req.AspectRatio != "" {
		prompt = fmt.Sprintf("%s (aspect ratio %s)", prompt, req.AspectRatio)
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for _, ref := range req.References {
		if ref.Label != "" {
			parts = append(parts, genai.NewPartFromText(ref.Label))
		}
		mime := ref.MimeType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(ref.Data, mime))
	}
	contents := []*genai.Content{{Parts: parts}}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return &adapter.GeneratedImage{Data: part.InlineData.Data, MimeType: mime}, nil
			}
		}
	}
	return nil, domain.ErrEmptyImageResponse
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return fmt.Errorf("%w: %s", domain.ErrRateLimited, apiErr.Message)
		case apiErr.Code >= 500:
			return fmt.Errorf("%w (gemini %d)", domain.ErrUpstreamUnstable, apiErr.Code)
		}
	}
	return err
}
