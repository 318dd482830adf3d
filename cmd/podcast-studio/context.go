package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-studio/internal/config"
	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/book-expert/podcast-studio/internal/docstore"
	"github.com/book-expert/podcast-studio/internal/draft"
	"github.com/book-expert/podcast-studio/internal/objectstore"
	"github.com/book-expert/podcast-studio/internal/openai"
	"github.com/nats-io/nats.go"
)

const (
	bootstrapLogFile = "podcast-studio-bootstrap.log"
	logFile          = "podcast-studio.log"
)

// commandContext loads the configuration once and owns every connection a
// command opens, closing them in reverse order.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	log        *logger.Logger
	configErr  error

	mu       sync.Mutex
	natsConn *nats.Conn
	js       nats.JetStreamContext
	closers  []func()
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}

		c.config, c.configErr = loadConfig(path)
		if c.configErr != nil {
			return
		}

		c.log, c.configErr = logger.New(c.config.Paths.BaseLogsDir, logFile)
		if c.configErr != nil {
			c.configErr = fmt.Errorf("failed to create logger: %w", c.configErr)

			return
		}

		c.onClose(func() {
			closeErr := c.log.Close()
			if closeErr != nil {
				fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
			}
		})
	})

	return c.config, c.configErr
}

// loadConfig reads path when given. Otherwise the shared configurator looks
// the project file up, logging to a bootstrap log until the real log
// directory is known.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}

	bootstrapLog, err := logger.New(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, err
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	return cfg, nil
}

func (c *commandContext) logger() *logger.Logger {
	return c.log
}

func (c *commandContext) onClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closers = append(c.closers, fn)
}

func (c *commandContext) close() {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	for _, fn := range slices.Backward(closers) {
		fn()
	}
}

func (c *commandContext) jetStream() (*nats.Conn, nats.JetStreamContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.natsConn != nil {
		return c.natsConn, c.js, nil
	}

	natsConnection, err := nats.Connect(c.config.NATS.URL)
	if err != nil {
		return nil, nil, core.Wrap(core.ErrConfiguration, "connect nats",
			fmt.Sprintf("failed to reach %s", c.config.NATS.URL), err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	c.natsConn = natsConnection
	c.js = jetstreamContext
	c.closers = append(c.closers, natsConnection.Close)

	return natsConnection, jetstreamContext, nil
}

func (c *commandContext) assetStore() (*objectstore.NatsObjectStore, error) {
	_, jetstreamContext, err := c.jetStream()
	if err != nil {
		return nil, err
	}

	return objectstore.New(jetstreamContext, c.config.NATS.AssetBucket,
		objectstore.WithPublicBaseURL(c.config.Storage.PublicBaseURL),
		objectstore.WithUploadTargetTTL(c.config.UploadTargetTTL()),
	)
}

// draftStore opens the configured draft backend.
func (c *commandContext) draftStore(ctx context.Context) (core.KeyValueStore, error) {
	switch c.config.Draft.Backend {
	case config.DraftBackendMemory:
		return draft.NewMemoryKV(), nil
	case config.DraftBackendRedis:
		client := draft.OpenRedis(c.config.Redis.URL)
		c.onClose(func() { _ = client.Close() })

		store := draft.NewRedisKV(client, c.config.Redis.Prefix, c.config.RedisTTL())

		err := store.Ping(ctx)
		if err != nil {
			return nil, core.Wrap(core.ErrConfiguration, "open drafts", "", err)
		}

		return store, nil
	default:
		_, jetstreamContext, err := c.jetStream()
		if err != nil {
			return nil, err
		}

		return draft.NewNatsKV(jetstreamContext, c.config.NATS.DraftBucket)
	}
}

func (c *commandContext) documents(ctx context.Context) (*docstore.Store, error) {
	store, err := docstore.Open(ctx, c.config.Docstore.Path)
	if err != nil {
		return nil, core.Wrap(core.ErrConfiguration, "open docstore", c.config.Docstore.Path, err)
	}

	c.onClose(func() { _ = store.Close() })

	return store, nil
}

func (c *commandContext) provider() (*openai.Client, error) {
	apiKey, err := c.config.APIKey()
	if err != nil {
		return nil, err
	}

	return openai.New(c.config.OpenAIClient(apiKey)), nil
}
