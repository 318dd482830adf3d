package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsKV stores drafts in a JetStream key-value bucket.
type NatsKV struct {
	bucket string
	kv     nats.KeyValue
}

// NewNatsKV creates the bucket, or binds to it when it already exists. Only
// the latest value of each key is kept.
func NewNatsKV(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsKV, error) {
	kv, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Wizard drafts for the %s bucket.", bucketName),
		History:     1,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create key-value bucket '%s': %w", bucketName, err)
		}

		kv, err = jetstreamContext.KeyValue(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing key-value bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsKV{bucket: bucketName, kv: kv}, nil
}

// Get implements core.KeyValueStore.
func (n *NatsKV) Get(_ context.Context, key string) ([]byte, error) {
	entry, err := n.kv.Get(SanitizeKey(key))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, core.ErrKeyNotFound
		}

		return nil, fmt.Errorf("failed to get key '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return entry.Value(), nil
}

// Put implements core.KeyValueStore.
func (n *NatsKV) Put(_ context.Context, key string, value []byte) error {
	_, err := n.kv.Put(SanitizeKey(key), value)
	if err != nil {
		return fmt.Errorf("failed to put key '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// Delete implements core.KeyValueStore.
func (n *NatsKV) Delete(_ context.Context, key string) error {
	err := n.kv.Delete(SanitizeKey(key))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// SanitizeKey maps key onto the JetStream key alphabet. Characters outside
// [-/_=.a-zA-Z0-9] become '_' and leading or trailing dots are dropped.
func SanitizeKey(key string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case strings.ContainsRune("-/_=.", r):
			return r
		default:
			return '_'
		}
	}, key)

	mapped = strings.Trim(mapped, ".")
	if mapped == "" {
		return "_"
	}

	return mapped
}
