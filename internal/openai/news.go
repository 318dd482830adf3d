package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/book-expert/podcast-studio/internal/core"
)

const (
	opNews          = "news search"
	toolWebSearch   = "web_search"
	errEmptyTopic   = "topic cannot be empty"
	errNoNewsArray  = "failed to parse news articles from search results"
	errFmtBadRecord = "article %d is missing a title or url"
)

const newsPromptFormat = "Find the top %d trending %s news articles from today. " +
	"Return ONLY a JSON array with no other text. Each item should have: title (string), " +
	"summary (2-3 sentence summary), source (publication name), url (article URL). " +
	`Format: [{"title":"...","summary":"...","source":"...","url":"..."}]`

// jsonArrayPattern extracts the outermost JSON array from free model text.
var jsonArrayPattern = regexp.MustCompile(`\[[\s\S]*\]`)

// ResponsesRequest is the JSON payload of a tool-assisted responses call.
type ResponsesRequest struct {
	Model string         `json:"model"`
	Tools []ResponseTool `json:"tools,omitempty"`
	Input string         `json:"input"`
}

// ResponseTool enables a hosted tool for a responses call.
type ResponseTool struct {
	Type string `json:"type"`
}

type responsesResponse struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// text joins every output_text fragment of the response.
func (r responsesResponse) text() string {
	if r.OutputText != "" {
		return r.OutputText
	}

	var builder strings.Builder

	for _, item := range r.Output {
		for _, content := range item.Content {
			if content.Type == "output_text" {
				builder.WriteString(content.Text)
			}
		}
	}

	return builder.String()
}

// SearchNews asks the model to web-search trending articles for topic. A
// non-positive count defaults to DefaultArticleCount. The model's answer is
// free text; the first JSON array in it is parsed and every article must carry
// a title and a URL.
func (c *Client) SearchNews(ctx context.Context, topic string, count int) ([]core.Article, error) {
	err := c.checkKey(opNews)
	if err != nil {
		return nil, err
	}

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, core.Wrap(core.ErrValidation, opNews, errEmptyTopic, nil)
	}

	if count <= 0 {
		count = DefaultArticleCount
	}

	body, err := c.postJSON(ctx, opNews, apiResponses, ResponsesRequest{
		Model: c.cfg.TextModel,
		Tools: []ResponseTool{{Type: toolWebSearch}},
		Input: fmt.Sprintf(newsPromptFormat, count, topic),
	})
	if err != nil {
		return nil, err
	}

	var parsed responsesResponse

	err = json.Unmarshal(body, &parsed)
	if err != nil {
		return nil, core.Wrap(core.ErrUpstream, opNews, "failed to decode response", err)
	}

	return ParseArticles(parsed.text())
}

// ParseArticles extracts and validates the article list from model output.
func ParseArticles(output string) ([]core.Article, error) {
	match := jsonArrayPattern.FindString(output)
	if match == "" {
		return nil, core.Wrap(core.ErrUpstream, opNews, errNoNewsArray, nil)
	}

	var articles []core.Article

	err := json.Unmarshal([]byte(match), &articles)
	if err != nil {
		return nil, core.Wrap(core.ErrUpstream, opNews, errNoNewsArray, err)
	}

	for index := range articles {
		article := &articles[index]
		article.Title = strings.TrimSpace(article.Title)
		article.URL = strings.TrimSpace(article.URL)

		if article.Title == "" || article.URL == "" {
			return nil, core.Wrap(core.ErrUpstream, opNews, fmt.Sprintf(errFmtBadRecord, index), nil)
		}
	}

	return articles, nil
}
