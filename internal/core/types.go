package core

import (
	"fmt"
	"strings"
	"time"
)

// Voice is one of the fixed speech-synthesis voices.
type Voice string

// Supported voices.
const (
	VoiceAlloy   Voice = "alloy"
	VoiceShimmer Voice = "shimmer"
	VoiceNova    Voice = "nova"
	VoiceEcho    Voice = "echo"
	VoiceFable   Voice = "fable"
	VoiceOnyx    Voice = "onyx"
)

// Voices lists the supported voices in presentation order.
func Voices() []Voice {
	return []Voice{VoiceAlloy, VoiceShimmer, VoiceNova, VoiceEcho, VoiceFable, VoiceOnyx}
}

// ParseVoice validates a voice label.
func ParseVoice(value string) (Voice, error) {
	normalized := Voice(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", fmt.Errorf("%w: voice cannot be empty", ErrValidation)
	}

	for _, voice := range Voices() {
		if voice == normalized {
			return voice, nil
		}
	}

	return "", fmt.Errorf("%w: unsupported voice '%s'", ErrValidation, value)
}

// Duration selects a target-length band for generated scripts.
type Duration string

// Duration bands.
const (
	DurationShort  Duration = "short"
	DurationMedium Duration = "medium"
	DurationLong   Duration = "long"
)

// WordGuide describes the approximate script length the band maps to.
// Unknown bands fall back to medium.
func (d Duration) WordGuide() string {
	switch d {
	case DurationShort:
		return "~500 words (about 2 minutes)"
	case DurationLong:
		return "~2500 words (about 10 minutes)"
	case DurationMedium:
		return "~1200 words (about 5 minutes)"
	default:
		return DurationMedium.WordGuide()
	}
}

// DefaultTone is used when the author has not picked one.
const DefaultTone = "casual"

// Article is a single search result.
type Article struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Source  string `json:"source"`
	URL     string `json:"url"`
}

// ScriptRequest carries the inputs for script generation.
type ScriptRequest struct {
	Topic    string
	Articles []Article
	Tone     string
	Duration Duration
}

// AssetReference is the durable handle of a stored asset. It is only usable
// when both the URL and the storage identifier are present.
type AssetReference struct {
	URL       string `json:"url"`
	StorageID string `json:"storage_id"`
}

// Valid reports whether both halves of the reference are set.
func (r AssetReference) Valid() bool {
	return r.URL != "" && r.StorageID != ""
}

// Asset is a finished binary artifact.
type Asset struct {
	Data        []byte
	ContentType string
	// Segments is the number of provider calls assembled into Data.
	Segments int
}

// Content types produced by the providers.
const (
	ContentTypeMP3 = "audio/mpeg"
	ContentTypePNG = "image/png"
)

// Identity is the authenticated author.
type Identity struct {
	Subject    string
	Email      string
	Name       string
	PictureURL string
}

// PodcastRecord is the artifact set submitted on publish.
type PodcastRecord struct {
	Title         string
	Description   string
	Audio         AssetReference
	Image         AssetReference
	Voice         Voice
	VoicePrompt   string
	ImagePrompt   string
	AudioDuration float64
	Views         int
}

// PublishedPodcast is announced after a successful publish.
type PublishedPodcast struct {
	RecordID    string
	Title       string
	AuthorID    string
	AudioURL    string
	ImageURL    string
	PublishedAt time.Time
}
