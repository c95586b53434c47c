package ports

import "context"

type ObjectRef struct {
	Bucket string
	Key    string
}

// ObjectStorage is the blob boundary. Keys are namespaced by the caller
// (analyses/{analysisID}/{analyzerKey}/...), so concurrent jobs never
// collide.
type ObjectStorage interface {
	Bucket() string
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) (ObjectRef, error)
}
