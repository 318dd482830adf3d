// Package publisher stores generated assets durably and hands back the
// reference the rest of the studio works with.
package publisher

import (
	"context"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-studio/internal/core"
)

const (
	opPublish = "publish asset"

	errEmptyData    = "asset data cannot be empty"
	errNoTarget     = "failed to get upload target"
	errUploadFailed = "failed to upload asset"
	errNoURL        = "failed to resolve asset URL"
	errEmptyURL     = "storage returned no URL for the asset"

	logFmtPublished = "Published asset %s (%d bytes, %s)"
)

// Publisher runs the upload exchange against a blob store.
type Publisher struct {
	store  core.BlobStore
	logger *logger.Logger
}

// New creates a publisher over store.
func New(store core.BlobStore, log *logger.Logger) *Publisher {
	return &Publisher{store: store, logger: log}
}

// Publish uploads data and resolves its public URL. The reference is
// returned only when both halves are known; every failure is a storage error.
// A blob uploaded before a failed URL resolution is left behind.
func (p *Publisher) Publish(ctx context.Context, data []byte, contentType string) (core.AssetReference, error) {
	if len(data) == 0 {
		return core.AssetReference{}, core.Wrap(core.ErrStorage, opPublish, errEmptyData, nil)
	}

	target, err := p.store.RequestUploadTarget(ctx)
	if err != nil {
		return core.AssetReference{}, core.Wrap(core.ErrStorage, opPublish, errNoTarget, err)
	}

	storageID, err := p.store.UploadTo(ctx, target, data, contentType)
	if err != nil {
		return core.AssetReference{}, core.Wrap(core.ErrStorage, opPublish, errUploadFailed, err)
	}

	url, err := p.store.ResolveURL(ctx, storageID)
	if err != nil {
		return core.AssetReference{}, core.Wrap(core.ErrStorage, opPublish, errNoURL, err)
	}

	if url == "" {
		return core.AssetReference{}, core.Wrap(core.ErrStorage, opPublish, errEmptyURL, nil)
	}

	p.logger.Info(logFmtPublished, storageID, len(data), contentType)

	return core.AssetReference{URL: url, StorageID: storageID}, nil
}

// PublishAsset publishes a generated asset with its own content type.
func (p *Publisher) PublishAsset(ctx context.Context, asset core.Asset) (core.AssetReference, error) {
	return p.Publish(ctx, asset.Data, asset.ContentType)
}
