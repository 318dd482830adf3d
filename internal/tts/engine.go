// Package tts orchestrates multi-call speech synthesis: a long script is
// segmented to the provider's input limit, every chunk is synthesized in
// order, and the segments are assembled into one contiguous audio asset.
package tts

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/book-expert/podcast-studio/internal/tts/text"
)

const (
	opAudio = "generate audio"
	opImage = "generate image"

	logFmtSegmented      = "Script segmented into %d chunks (limit %d)"
	logFmtChunkProcessed = "Processed chunk %d/%d"
	logFmtChunkFailed    = "Failed to process chunk %d/%d: %v"
	logFmtAudioAssembled = "Assembled audio: %d bytes from %d chunks"
	logFmtImageGenerated = "Generated image: %d bytes"

	errFmtChunkFailed = "chunk %d of %d failed"
	errEmptyScript    = "script cannot be empty"
	errEmptyPrompt    = "prompt cannot be empty"
)

// Assembler joins synthesized segments, in index order, into one binary.
type Assembler interface {
	Assemble(segments [][]byte) ([]byte, error)
}

// ConcatAssembler appends segments byte for byte. MP3 frames are
// self-delimiting, so concatenated streams play back contiguously.
type ConcatAssembler struct{}

// Assemble implements Assembler.
func (ConcatAssembler) Assemble(segments [][]byte) ([]byte, error) {
	return bytes.Join(segments, nil), nil
}

// Engine drives the speech and image providers.
type Engine struct {
	speech    core.SpeechSynthesizer
	images    core.ImageSynthesizer
	assembler Assembler
	filter    func(string) string
	logger    *logger.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithAssembler replaces the default ConcatAssembler.
func WithAssembler(assembler Assembler) EngineOption {
	return func(e *Engine) {
		if assembler != nil {
			e.assembler = assembler
		}
	}
}

// WithTextFilter rewrites every script before it is segmented, e.g.
// text.Clean.
func WithTextFilter(filter func(string) string) EngineOption {
	return func(e *Engine) {
		e.filter = filter
	}
}

// NewEngine creates an engine over the given providers.
func NewEngine(
	speech core.SpeechSynthesizer,
	images core.ImageSynthesizer,
	log *logger.Logger,
	opts ...EngineOption,
) *Engine {
	engine := &Engine{
		speech:    speech,
		images:    images,
		assembler: ConcatAssembler{},
		logger:    log,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// SynthesizeAudio converts script into one audio asset. Chunks are sent
// strictly one after another and never concurrently: segment order must be
// preserved and the provider limits concurrent requests. The first failure
// aborts the run and every segment collected so far is discarded, so no
// partial asset is ever returned.
func (e *Engine) SynthesizeAudio(ctx context.Context, script string, voice core.Voice) (core.Asset, error) {
	if strings.TrimSpace(script) == "" {
		return core.Asset{}, core.Wrap(core.ErrValidation, opAudio, errEmptyScript, nil)
	}

	parsed, err := core.ParseVoice(string(voice))
	if err != nil {
		return core.Asset{}, core.Wrap(core.ErrValidation, opAudio, "", err)
	}

	if e.filter != nil {
		script = e.filter(script)
		if strings.TrimSpace(script) == "" {
			return core.Asset{}, core.Wrap(core.ErrValidation, opAudio, errEmptyScript, nil)
		}
	}

	limit := e.speech.MaxInputChars()
	chunks := text.Segment(script, limit)
	e.logger.Info(logFmtSegmented, len(chunks), limit)

	segments := make([][]byte, 0, len(chunks))

	for index, chunk := range chunks {
		audio, synthErr := e.speech.Synthesize(ctx, chunk, parsed)
		if synthErr != nil {
			e.logger.Error(logFmtChunkFailed, index+1, len(chunks), synthErr)

			return core.Asset{}, chunkError(index, len(chunks), synthErr)
		}

		segments = append(segments, audio)
		e.logger.Info(logFmtChunkProcessed, index+1, len(chunks))
	}

	data, err := e.assembler.Assemble(segments)
	if err != nil {
		return core.Asset{}, core.Wrap(core.ErrUpstream, opAudio, "failed to assemble segments", err)
	}

	e.logger.Info(logFmtAudioAssembled, len(data), len(chunks))

	return core.Asset{Data: data, ContentType: core.ContentTypeMP3, Segments: len(chunks)}, nil
}

// SynthesizeImage renders a single image for prompt. There is no retry.
func (e *Engine) SynthesizeImage(ctx context.Context, prompt string) (core.Asset, error) {
	if strings.TrimSpace(prompt) == "" {
		return core.Asset{}, core.Wrap(core.ErrValidation, opImage, errEmptyPrompt, nil)
	}

	data, err := e.images.Generate(ctx, prompt)
	if err != nil {
		return core.Asset{}, core.Wrap(core.MarkerOf(err), opImage, "", err)
	}

	e.logger.Info(logFmtImageGenerated, len(data))

	return core.Asset{Data: data, ContentType: core.ContentTypePNG, Segments: 1}, nil
}

// chunkError keeps the provider's own class, so a configuration problem is
// not reported as an outage. Unclassified failures are upstream errors.
func chunkError(index, total int, err error) error {
	return core.Wrap(core.MarkerOf(err), opAudio, fmt.Sprintf(errFmtChunkFailed, index+1, total), err)
}
