package imagegen

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"time"

	"canvas-imagegen/internal/domain/ports/adapter"
)

var _ adapter.ImageServiceAdapter = (*NoopAdapter)(nil)

// NoopAdapter implements the image service port for local/dev runs. It
// produces a small solid-color PNG instead of calling a real service.
type NoopAdapter struct{}

func NewNoopAdapter() *NoopAdapter {
	return &NoopAdapter{}
}

func (a *NoopAdapter) Name() string { return "noop" }

func (a *NoopAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GeneratedImage, error) {
	// Simulate slight processing time and respect ctx.
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Derive a deterministic color from the prompt so repeated runs are
	// recognizable in the gallery.
	var sum byte
	for i := 0; i < len(req.Prompt); i++ {
		sum += req.Prompt[i]
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	fill := color.RGBA{R: sum, G: sum * 3, B: sum * 7, A: 0xff}
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return &adapter.GeneratedImage{Data: buf.Bytes(), MimeType: "image/png"}, nil
}
