// Package core defines the domain types, ports and error taxonomy shared by the podcast studio.
package core

import "context"

// ObjectStore reads stored objects by key.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// BlobStore is the durable asset storage used by the publisher. Uploading is a
// two-phase exchange: a one-time target is requested first, the binary is sent
// to it, and the returned storage identifier is later resolved to a URL.
type BlobStore interface {
	RequestUploadTarget(ctx context.Context) (string, error)
	UploadTo(ctx context.Context, target string, data []byte, contentType string) (string, error)
	// ResolveURL returns an empty string when the identifier is unknown.
	ResolveURL(ctx context.Context, storageID string) (string, error)
}

// SpeechSynthesizer converts one bounded chunk of text into raw audio bytes.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
	MaxInputChars() int
}

// ImageSynthesizer renders a single image for a prompt.
type ImageSynthesizer interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// NewsSearcher finds trending articles for a topic.
type NewsSearcher interface {
	SearchNews(ctx context.Context, topic string, count int) ([]Article, error)
}

// ScriptGenerator writes a spoken podcast script from a set of articles.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, req ScriptRequest) (string, error)
}

// DocumentStore persists published podcasts.
type DocumentStore interface {
	CreateRecord(ctx context.Context, identity Identity, record PodcastRecord) (string, error)
}

// KeyValueStore is the single-slot-per-key store drafts are persisted to.
// Implementations return ErrKeyNotFound from Get when nothing is stored and
// treat Delete of a missing key as success.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// EventPublisher announces published podcasts to the rest of the platform.
type EventPublisher interface {
	PublishPodcast(ctx context.Context, podcast PublishedPodcast) error
}
