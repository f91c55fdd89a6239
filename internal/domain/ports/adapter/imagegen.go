package adapter

import "context"

// ReferencePart is one reference image attached to a generation request,
// already fetched and filtered by the caller.
type ReferencePart struct {
	Label    string
	Data     []byte
	MimeType string
}

// GenerateRequest describes one image to generate. The service is invoked
// once per requested image.
type GenerateRequest struct {
	Prompt      string
	AspectRatio string // empty means auto
	Resolution  string
	References  []ReferencePart
}

// GeneratedImage is the raw service output before storage.
type GeneratedImage struct {
	Data     []byte
	MimeType string
}

// ImageServiceAdapter is the opaque generative-image service: prompt and
// reference bytes in, image bytes or a classified error out.
//
// Implementations map upstream responses onto the domain taxonomy:
// HTTP 429 -> domain.ErrRateLimited, HTTP >= 500 -> domain.ErrUpstreamUnstable,
// a success with no image payload -> domain.ErrEmptyImageResponse.
type ImageServiceAdapter interface {
	Generate(ctx context.Context, req GenerateRequest) (*GeneratedImage, error)
	Name() string
}
