// Package objectstore provides the NATS JetStream blob storage behind
// published podcast assets.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/patrickmn/go-cache"
)

const (
	// DefaultPublicBaseURL prefixes resolved URLs when no public base is configured.
	DefaultPublicBaseURL = "nats://objectstore"
	// DefaultUploadTargetTTL bounds how long a requested upload target stays usable.
	DefaultUploadTargetTTL = 15 * time.Minute

	headerContentType = "Content-Type"
	uploadTargetPath  = "upload/"
)

var (
	// ErrUploadTargetInvalid is returned for unknown, expired or already used targets.
	ErrUploadTargetInvalid = errors.New("upload target is invalid or expired")
	// ErrEmptyObject rejects uploads without data.
	ErrEmptyObject = errors.New("object data cannot be empty")
)

// NatsObjectStore implements core.BlobStore and core.ObjectStore using a
// JetStream object store bucket.
type NatsObjectStore struct {
	jetstreamContext nats.JetStreamContext
	bucket           string
	publicBaseURL    string
	targetTTL        time.Duration
	store            nats.ObjectStore

	// targets holds the outstanding one-time upload targets.
	targets   *cache.Cache
	targetsMu sync.Mutex
}

// Option customizes the store.
type Option func(*NatsObjectStore)

// WithPublicBaseURL sets the prefix resolved asset URLs are built from.
func WithPublicBaseURL(baseURL string) Option {
	return func(n *NatsObjectStore) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			n.publicBaseURL = baseURL
		}
	}
}

// WithUploadTargetTTL overrides DefaultUploadTargetTTL.
func WithUploadTargetTTL(ttl time.Duration) Option {
	return func(n *NatsObjectStore) {
		if ttl > 0 {
			n.targetTTL = ttl
		}
	}
}

// New creates the bucket, or binds to it when it already exists.
func New(jetstreamContext nats.JetStreamContext, bucketName string, opts ...Option) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Podcast assets for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	objectStore := &NatsObjectStore{
		jetstreamContext: jetstreamContext,
		bucket:           bucketName,
		publicBaseURL:    DefaultPublicBaseURL,
		targetTTL:        DefaultUploadTargetTTL,
		store:            store,
	}

	for _, opt := range opts {
		opt(objectStore)
	}

	objectStore.targets = cache.New(objectStore.targetTTL, 2*objectStore.targetTTL)

	return objectStore, nil
}

// RequestUploadTarget issues a one-time target for a single upload.
func (n *NatsObjectStore) RequestUploadTarget(_ context.Context) (string, error) {
	target := uploadTargetPath + uuid.NewString()
	n.targets.Set(target, struct{}{}, cache.DefaultExpiration)

	return target, nil
}

// UploadTo stores data under a fresh storage identifier. The target is
// consumed whether or not the write succeeds.
func (n *NatsObjectStore) UploadTo(_ context.Context, target string, data []byte, contentType string) (string, error) {
	if !n.consumeTarget(target) {
		return "", fmt.Errorf("%w: '%s'", ErrUploadTargetInvalid, target)
	}

	if len(data) == 0 {
		return "", ErrEmptyObject
	}

	storageID := uuid.NewString()

	headers := nats.Header{}
	if contentType != "" {
		headers.Set(headerContentType, contentType)
	}

	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        storageID,
		Description: "",
		Headers:     headers,
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to put object '%s' to bucket '%s': %w", storageID, n.bucket, err)
	}

	return storageID, nil
}

// ResolveURL returns the public URL of a stored object, or an empty string
// when no such object exists.
func (n *NatsObjectStore) ResolveURL(_ context.Context, storageID string) (string, error) {
	if strings.TrimSpace(storageID) == "" {
		return "", nil
	}

	_, err := n.store.GetInfo(storageID)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return "", nil
		}

		return "", fmt.Errorf("failed to stat object '%s' in bucket '%s': %w", storageID, n.bucket, err)
	}

	return n.publicBaseURL + "/" + url.PathEscape(n.bucket) + "/" + url.PathEscape(storageID), nil
}

// Download retrieves an object from the NATS object store.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

func (n *NatsObjectStore) consumeTarget(target string) bool {
	n.targetsMu.Lock()
	defer n.targetsMu.Unlock()

	if _, ok := n.targets.Get(target); !ok {
		return false
	}

	n.targets.Delete(target)

	return true
}
