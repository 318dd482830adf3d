package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/book-expert/podcast-studio/internal/core"
)

const (
	opScript         = "script generation"
	errNoArticles    = "at least one article is required"
	errEmptyScript   = "model returned an empty script"
	roleSystem       = "system"
	roleUser         = "user"
	scriptSystemText = "You are a podcast script writer. Write engaging, natural-sounding podcast scripts " +
		"that are meant to be read aloud. Use a %s tone. Do not include stage directions, sound effects, " +
		"or speaker labels, just the spoken text."
	scriptUserText = `Write a %s podcast script about today's top %s news. Target length: %s.

Articles to cover:
%s

Requirements:
- Start with a brief, engaging intro greeting
- Cover each article with smooth transitions
- Add brief commentary or context where appropriate
- End with a natural sign-off
- Write ONLY the spoken text, no formatting or labels`
)

// ChatRequest is the JSON payload of a chat completion call.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage is one turn of a chat completion conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateScript writes a spoken script covering the selected articles.
// The tone defaults to casual and the duration band to medium.
func (c *Client) GenerateScript(ctx context.Context, req core.ScriptRequest) (string, error) {
	err := c.checkKey(opScript)
	if err != nil {
		return "", err
	}

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return "", core.Wrap(core.ErrValidation, opScript, errEmptyTopic, nil)
	}

	if len(req.Articles) == 0 {
		return "", core.Wrap(core.ErrValidation, opScript, errNoArticles, nil)
	}

	tone := strings.TrimSpace(req.Tone)
	if tone == "" {
		tone = core.DefaultTone
	}

	body, err := c.postJSON(ctx, opScript, apiCompletions, ChatRequest{
		Model: c.cfg.TextModel,
		Messages: []ChatMessage{
			{Role: roleSystem, Content: fmt.Sprintf(scriptSystemText, tone)},
			{Role: roleUser, Content: fmt.Sprintf(scriptUserText, tone, topic,
				req.Duration.WordGuide(), summarize(req.Articles))},
		},
	})
	if err != nil {
		return "", err
	}

	var parsed chatResponse

	err = json.Unmarshal(body, &parsed)
	if err != nil {
		return "", core.Wrap(core.ErrUpstream, opScript, "failed to decode response", err)
	}

	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", core.Wrap(core.ErrUpstream, opScript, errEmptyScript, nil)
	}

	return parsed.Choices[0].Message.Content, nil
}

func summarize(articles []core.Article) string {
	lines := make([]string, 0, len(articles))
	for index, article := range articles {
		lines = append(lines, fmt.Sprintf("%d. %q (%s): %s", index+1, article.Title, article.Source, article.Summary))
	}

	return strings.Join(lines, "\n")
}
