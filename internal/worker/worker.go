// Package worker serves speech synthesis requests over NATS so other
// services can turn a script into a stored podcast episode.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/book-expert/podcast-studio/internal/tts"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the request subject the worker listens on.
const DefaultSubject = "podcast.synthesize"

const handleMessageTimeout = 10 * time.Minute

var (
	// ErrScriptMissing indicates that a request carries neither a script nor a script key.
	ErrScriptMissing = errors.New("script or script key is required")
	// ErrScriptAmbiguous indicates that a request carries both a script and a script key.
	ErrScriptAmbiguous = errors.New("script and script key are mutually exclusive")
)

// SynthesizeRequest asks for a script to be voiced and stored. The script is
// given inline or as the key of an object holding it.
type SynthesizeRequest struct {
	Header    events.EventHeader `json:"Header"`
	Script    string             `json:"Script,omitempty"`
	ScriptKey string             `json:"ScriptKey,omitempty"`
	Voice     string             `json:"Voice"`
}

// SynthesizeReply answers a SynthesizeRequest. Error is set instead of the
// audio fields when the request failed.
type SynthesizeReply struct {
	Header         events.EventHeader `json:"Header"`
	AudioURL       string             `json:"AudioURL,omitempty"`
	AudioStorageID string             `json:"AudioStorageID,omitempty"`
	Segments       int                `json:"Segments,omitempty"`
	Duration       float64            `json:"Duration,omitempty"`
	Error          string             `json:"Error,omitempty"`
}

// AudioSynthesizer turns a script into one audio asset.
type AudioSynthesizer interface {
	SynthesizeAudio(ctx context.Context, script string, voice core.Voice) (core.Asset, error)
}

// AssetPublisher stores an asset and returns its paired reference.
type AssetPublisher interface {
	PublishAsset(ctx context.Context, asset core.Asset) (core.AssetReference, error)
}

// NatsWorker listens for synthesis requests on a NATS subject.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	scripts        core.ObjectStore
	engine         AudioSynthesizer
	publisher      AssetPublisher
	bitrateKbps    int
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. A zero bitrate
// selects tts.DefaultBitrateKbps.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	scripts core.ObjectStore,
	engine AudioSynthesizer,
	publisher AssetPublisher,
	bitrateKbps int,
	log *logger.Logger,
) *NatsWorker {
	if subject == "" {
		subject = DefaultSubject
	}

	if bitrateKbps <= 0 {
		bitrateKbps = tts.DefaultBitrateKbps
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		scripts:        scripts,
		engine:         engine,
		publisher:      publisher,
		bitrateKbps:    bitrateKbps,
		log:            log,
	}
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for synthesis requests on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	request, err := parseRequest(msg)
	if err != nil {
		w.log.Error("Failed to parse synthesis request: %v", err)
		w.respond(msg, SynthesizeReply{Error: err.Error()})

		return
	}

	reply, err := w.synthesize(ctx, request)
	if err != nil {
		w.log.Error("Failed to synthesize podcast for workflow %s: %v", request.Header.WorkflowID, err)
		reply = SynthesizeReply{Header: request.Header, Error: err.Error()}
	}

	w.respond(msg, reply)
}

// synthesize loads the script, voices it and stores the audio.
func (w *NatsWorker) synthesize(ctx context.Context, request *SynthesizeRequest) (SynthesizeReply, error) {
	script, err := w.loadScript(ctx, request)
	if err != nil {
		return SynthesizeReply{}, err
	}

	asset, err := w.engine.SynthesizeAudio(ctx, script, core.Voice(request.Voice))
	if err != nil {
		return SynthesizeReply{}, err
	}

	reference, err := w.publisher.PublishAsset(ctx, asset)
	if err != nil {
		return SynthesizeReply{}, err
	}

	w.log.Info("Stored %d segment podcast for workflow %s as %s",
		asset.Segments, request.Header.WorkflowID, reference.StorageID)

	return SynthesizeReply{
		Header:         request.Header,
		AudioURL:       reference.URL,
		AudioStorageID: reference.StorageID,
		Segments:       asset.Segments,
		Duration:       tts.EstimateDuration(asset, w.bitrateKbps),
	}, nil
}

func (w *NatsWorker) loadScript(ctx context.Context, request *SynthesizeRequest) (string, error) {
	if request.ScriptKey == "" {
		return request.Script, nil
	}

	data, err := w.scripts.Download(ctx, request.ScriptKey)
	if err != nil {
		return "", core.Wrap(core.ErrStorage, "load script",
			fmt.Sprintf("failed to download script for key '%s'", request.ScriptKey), err)
	}

	return string(data), nil
}

// respond marshals and sends reply. Fire-and-forget publishes have no reply
// subject and are only logged.
func (w *NatsWorker) respond(msg *nats.Msg, reply SynthesizeReply) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal synthesis reply: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish synthesis reply: %v", err)
	}
}

func parseRequest(msg *nats.Msg) (*SynthesizeRequest, error) {
	var request SynthesizeRequest

	err := json.Unmarshal(msg.Data, &request)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}

	hasScript := strings.TrimSpace(request.Script) != ""

	switch {
	case !hasScript && request.ScriptKey == "":
		return nil, ErrScriptMissing
	case hasScript && request.ScriptKey != "":
		return nil, ErrScriptAmbiguous
	}

	return &request, nil
}
