package tts

import "github.com/book-expert/podcast-studio/internal/core"

// DefaultBitrateKbps is the constant bitrate of the provider's MP3 output.
const DefaultBitrateKbps = 160

// EstimateDuration returns the playback length of a constant-bitrate asset in
// seconds. A non-positive bitrate falls back to DefaultBitrateKbps.
func EstimateDuration(asset core.Asset, bitrateKbps int) float64 {
	if bitrateKbps <= 0 {
		bitrateKbps = DefaultBitrateKbps
	}

	bytesPerSecond := float64(bitrateKbps) * 1000 / 8

	return float64(len(asset.Data)) / bytesPerSecond
}
