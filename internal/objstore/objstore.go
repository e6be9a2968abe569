// Package objstore abstracts the external object store holding uploaded
// resume files. Fetch failures are processing failures for the worker,
// never fatal ones.
package objstore

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
)

type Store interface {
	GetObjectBytes(ctx context.Context, bucket, key string) ([]byte, error)
}

// GCS reads objects from Google Cloud Storage.
type GCS struct{ client *storage.Client }

func NewGCS(ctx context.Context) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "creating storage client")
	}
	return &GCS{client: client}, nil
}

func (g *GCS) GetObjectBytes(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "opening object %s/%s", bucket, key)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "reading object %s/%s", bucket, key)
	}
	return b, nil
}

func (g *GCS) Close() error { return g.client.Close() }
