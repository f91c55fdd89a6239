package imagegen

import (
	"context"

	"canvas-imagegen/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.ImageServiceAdapter = (*limitedImageService)(nil)

type limitedImageService struct {
	inner adapter.ImageServiceAdapter
	sem   chan struct{}
}

// NewLimitedImageService caps concurrent calls to the external service
// across all worker invocations in this process.
func NewLimitedImageService(inner adapter.ImageServiceAdapter, maxConcurrent int) adapter.ImageServiceAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedImageService{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedImageService) Name() string { return l.inner.Name() }

func (l *limitedImageService) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GeneratedImage, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Generate(ctx, req)
}
