package openai

import (
	"context"
	"strings"

	"github.com/book-expert/podcast-studio/internal/core"
)

const (
	opSpeech           = "speech"
	speechResponseMP3  = "mp3"
	errEmptySpeechText = "text cannot be empty"
	errEmptyAudio      = "received empty audio data"
)

// SpeechRequest is the JSON payload of a speech synthesis call.
type SpeechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize converts one chunk of text into MP3 bytes. The chunk must fit
// within MaxInputChars; splitting is the caller's job.
func (c *Client) Synthesize(ctx context.Context, text string, voice core.Voice) ([]byte, error) {
	err := c.checkKey(opSpeech)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return nil, core.Wrap(core.ErrValidation, opSpeech, errEmptySpeechText, nil)
	}

	parsed, err := core.ParseVoice(string(voice))
	if err != nil {
		return nil, core.Wrap(core.ErrValidation, opSpeech, "", err)
	}

	audio, err := c.postJSON(ctx, opSpeech, apiSpeech, SpeechRequest{
		Model:          c.cfg.SpeechModel,
		Voice:          string(parsed),
		Input:          text,
		ResponseFormat: speechResponseMP3,
	})
	if err != nil {
		return nil, err
	}

	if len(audio) == 0 {
		return nil, core.Wrap(core.ErrUpstream, opSpeech, errEmptyAudio, nil)
	}

	return audio, nil
}
