package archive

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/pkg/errors"
)

// BlobStore implements ObjectStore on Azure Blob Storage.
type BlobStore struct {
	client    *azblob.Client
	container string
}

// NewBlobStore creates the archive blob store. Unlike the queue, the archive
// store is not optional for the worker: without it the consumer has no
// purpose, so missing configuration is an error.
func NewBlobStore(connStr, container string) (*BlobStore, error) {
	if connStr == "" || container == "" {
		return nil, errors.New("archive storage is not configured")
	}

	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create blob storage client")
	}

	return &BlobStore{
		client:    client,
		container: container,
	}, nil
}

// Put uploads one immutable archive object.
func (b *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	if _, err := b.client.UploadBuffer(ctx, b.container, key, data, nil); err != nil {
		return errors.Wrapf(err, "failed to upload archive object %s", key)
	}
	return nil
}
