package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/book-expert/podcast-studio/internal/core"
)

const (
	opImage            = "image"
	errEmptyPrompt     = "prompt cannot be empty"
	errNoImageReturned = "no image URL returned"
	errEmptyImage      = "received empty image data"
)

// ImageRequest is the JSON payload of an image generation call.
type ImageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
	N       int    `json:"n"`
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Generate renders a single square image for prompt. The provider answers with
// a short-lived URL, which is fetched so the caller owns the bytes.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	err := c.checkKey(opImage)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(prompt) == "" {
		return nil, core.Wrap(core.ErrValidation, opImage, errEmptyPrompt, nil)
	}

	body, err := c.postJSON(ctx, opImage, apiImages, ImageRequest{
		Model:   c.cfg.ImageModel,
		Prompt:  prompt,
		Size:    c.cfg.ImageSize,
		Quality: c.cfg.ImageQuality,
		N:       1,
	})
	if err != nil {
		return nil, err
	}

	var parsed imageResponse

	err = json.Unmarshal(body, &parsed)
	if err != nil {
		return nil, core.Wrap(core.ErrUpstream, opImage, "failed to decode response", err)
	}

	if len(parsed.Data) == 0 {
		return nil, core.Wrap(core.ErrUpstream, opImage, errNoImageReturned, nil)
	}

	if encoded := parsed.Data[0].B64JSON; encoded != "" {
		image, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr != nil {
			return nil, core.Wrap(core.ErrUpstream, opImage, "failed to decode image", decodeErr)
		}

		return image, nil
	}

	if parsed.Data[0].URL == "" {
		return nil, core.Wrap(core.ErrUpstream, opImage, errNoImageReturned, nil)
	}

	return c.fetch(ctx, parsed.Data[0].URL)
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, core.Wrap(core.ErrUpstream, opImage, "failed to create download request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.Wrap(core.ErrUpstream, opImage, "failed to download image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.Wrap(core.ErrUpstream, opImage, "image download returned "+resp.Status, nil)
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.Wrap(core.ErrUpstream, opImage, "failed to read image", err)
	}

	if len(image) == 0 {
		return nil, core.Wrap(core.ErrUpstream, opImage, errEmptyImage, nil)
	}

	return image, nil
}
