package objectclient

import (
	"context"
)

// ObjectClient stores and retrieves uploaded document blobs.
// It's abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadDocument(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	GetDocument(ctx context.Context, key string) ([]byte, error)
	DeleteDocument(ctx context.Context, key string) error
}
