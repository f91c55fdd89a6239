package adapter

import "context"

// BlobStore is durable storage for generated images. Put writes bytes under
// a path scoped to the owning user and returns the public URL.
type BlobStore interface {
	Put(ctx context.Context, ownerID, fileName string, data []byte, mimeType string) (publicURL string, err error)
}
