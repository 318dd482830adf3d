package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/book-expert/podcast-studio/internal/docstore"
	"github.com/book-expert/podcast-studio/internal/notify"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKeyEnv = "PODCAST_STUDIO_TEST_KEY"
	testScript    = "Welcome to the briefing. Chips got faster this week. Rockets flew again."
	coverPath     = "/files/cover.png"
	coverImage    = "\x89PNG\x0D\x0A\x1A\x0Acover"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCommand()

	var stdout, stderr bytes.Buffer

	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()

	return stdout.String(), stderr.String(), err
}

// writeTestConfig writes a configuration file with logs and the document
// store under a temporary directory, followed by extra TOML.
func writeTestConfig(t *testing.T, extra string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "podcasts.db")
	content := fmt.Sprintf("[paths]\nbase_logs_dir = %q\n\n[docstore]\npath = %q\n\n%s", dir, dbPath, extra)

	configPath := filepath.Join(dir, "project.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return configPath, dbPath
}

func TestSegmentCommand_ReadsStdin(t *testing.T) {
	t.Parallel()

	out, _, err := runCLI(t, "First sentence here. Second sentence here. Third one.", "segment", "--max", "25")
	require.NoError(t, err)

	assert.Equal(t,
		"[1/3] (20 chars) First sentence here.\n"+
			"[2/3] (21 chars) Second sentence here.\n"+
			"[3/3] (10 chars) Third one.\n",
		out)
}

func TestSegmentCommand_ReadsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "script.txt")
	require.NoError(t, os.WriteFile(path, []byte("Short script."), 0o600))

	out, _, err := runCLI(t, "", "segment", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, "[1/1] (13 chars) Short script.\n", out)

	out, _, err = runCLI(t, "**Big** news [1].", "segment", "--clean")
	require.NoError(t, err)
	assert.Equal(t, "[1/1] (9 chars) Big news.\n", out)

	out, _, err = runCLI(t, "", "segment")
	require.NoError(t, err)
	assert.Equal(t, "Script is empty\n", out)

	_, _, err = runCLI(t, "", "segment", "--file", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestDraftCommand_MemoryBackend(t *testing.T) {
	t.Parallel()

	configPath, _ := writeTestConfig(t, "[draft]\nbackend = \"memory\"\n")

	out, _, err := runCLI(t, "", "--config", configPath, "draft", "show", "--key", "draft.one")
	require.NoError(t, err)
	assert.Equal(t, "No draft saved under draft.one\n", out)

	out, _, err = runCLI(t, "", "--config", configPath, "draft", "discard")
	require.NoError(t, err)
	assert.Contains(t, out, "Discarded draft castory.draft.news-podcast")

	out, _, err = runCLI(t, "", "--config", configPath, "draft", "discard", "--manual")
	require.NoError(t, err)
	assert.Contains(t, out, "Discarded draft castory.draft.podcast")

	_, _, err = runCLI(t, "", "--config", configPath, "draft", "show", "--manual", "--key", "draft.one")
	require.Error(t, err)
}

func TestRootCommand_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	configPath, _ := writeTestConfig(t, "[draft]\nbackend = \"etcd\"\n")

	_, _, err := runCLI(t, "", "--config", configPath, "podcasts", "list")
	require.ErrorIs(t, err, core.ErrConfiguration)
}

func TestPodcastsCommands(t *testing.T) {
	t.Parallel()

	configPath, dbPath := writeTestConfig(t, "[draft]\nbackend = \"memory\"\n")
	ctx := context.Background()

	store, err := docstore.Open(ctx, dbPath)
	require.NoError(t, err)

	record := core.PodcastRecord{
		Description:   "A casual technology news podcast covering 2 trending stories.",
		Audio:         core.AssetReference{URL: "https://cdn.example/a", StorageID: "a"},
		Image:         core.AssetReference{URL: "https://cdn.example/i", StorageID: "i"},
		Voice:         core.VoiceNova,
		AudioDuration: 125,
	}

	record.Title = "Technology Briefing"
	techID, err := store.CreateRecord(ctx, core.Identity{Subject: "user_1", Name: "Ada"}, record)
	require.NoError(t, err)

	record.Title = "Science Weekly"
	_, err = store.CreateRecord(ctx, core.Identity{Subject: "user_2", Name: "Grace"}, record)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, _, err := runCLI(t, "", "--config", configPath, "podcasts", "list", "--search", "tech")
	require.NoError(t, err)
	assert.Contains(t, out, "Technology Briefing")
	assert.NotContains(t, out, "Science Weekly")
	assert.Contains(t, out, "2:05")

	out, _, err = runCLI(t, "", "--config", configPath, "podcasts", "list", "--author", "user_2")
	require.NoError(t, err)
	assert.Contains(t, out, "Science Weekly")
	assert.NotContains(t, out, "Technology Briefing")

	out, _, err = runCLI(t, "", "--config", configPath, "podcasts", "show", techID)
	require.NoError(t, err)
	assert.Contains(t, out, "By:     Ada")
	assert.Contains(t, out, "Views:  1")
	assert.Contains(t, out, "Also narrated by nova:")
	assert.Contains(t, out, "Science Weekly")

	out, _, err = runCLI(t, "", "--config", configPath, "podcasts", "trending", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Technology Briefing")
	assert.NotContains(t, out, "Science Weekly")

	_, _, err = runCLI(t, "", "--config", configPath, "podcasts", "show", "missing")
	require.ErrorIs(t, err, docstore.ErrPodcastNotFound)

	out, _, err = runCLI(t, "", "--config", configPath, "podcasts", "list", "--search", "nothing like this")
	require.NoError(t, err)
	assert.Equal(t, "No podcasts found\n", out)
}

// providerStub answers the provider endpoints the studio calls and counts
// requests per path.
type providerStub struct {
	server     *httptest.Server
	searches   atomic.Int32
	scripts    atomic.Int32
	speeches   atomic.Int32
	failSpeech atomic.Bool
}

func newProviderStub(t *testing.T) *providerStub {
	t.Helper()

	stub := &providerStub{}
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/responses", func(w http.ResponseWriter, _ *http.Request) {
		stub.searches.Add(1)

		articles := `[{"title":"Chips","summary":"Faster.","source":"Wire","url":"https://example.com/1"},` +
			`{"title":"Rockets","summary":"Flew.","source":"Orbit","url":"https://example.com/2"},` +
			`{"title":"Phones","summary":"Folded.","source":"Gadget","url":"https://example.com/3"}]`
		writeJSON(t, w, map[string]any{
			"output": []map[string]any{{
				"type":    "message",
				"content": []map[string]string{{"type": "output_text", "text": articles}},
			}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		stub.scripts.Add(1)
		writeJSON(t, w, map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": testScript}}},
		})
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, _ *http.Request) {
		stub.speeches.Add(1)

		if stub.failSpeech.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			writeJSON(t, w, map[string]any{"error": map[string]string{"message": "overloaded"}})

			return
		}

		_, _ = w.Write(bytes.Repeat([]byte{0xFF}, 20000))
	})
	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"data": []map[string]string{{"url": stub.server.URL + coverPath}}})
	})
	mux.HandleFunc(coverPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(coverImage))
	})

	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)

	return stub
}

func writeJSON(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(payload))
}

type studioEnv struct {
	configPath string
	dbPath     string
	provider   *providerStub
	jetStream  nats.JetStreamContext
}

func setupStudioEnv(t *testing.T) *studioEnv {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	provider := newProviderStub(t)
	t.Setenv(testAPIKeyEnv, "sk-test")

	configPath, dbPath := writeTestConfig(t, fmt.Sprintf(`[openai]
base_url = %q
api_key_env = %q

[nats]
url = %q

[storage]
public_base_url = "https://cdn.example"

[draft]
backend = "nats"
debounce_ms = 20
activation_ms = 40
`, provider.server.URL, testAPIKeyEnv, server.ClientURL()))

	return &studioEnv{configPath: configPath, dbPath: dbPath, provider: provider, jetStream: jetstreamContext}
}

func publishedID(t *testing.T, out string) string {
	t.Helper()

	_, recordID, found := strings.Cut(out, "Published podcast ")
	require.True(t, found, "output: %s", out)

	return strings.TrimSpace(recordID)
}

func TestCreateCommand_PublishesEpisode(t *testing.T) {
	env := setupStudioEnv(t)

	out, _, err := runCLI(t, "", "--config", env.configPath, "create",
		"--topic", "technology", "--articles", "1,3", "--voice", "nova",
		"--author-id", "user_1", "--author-name", "Ada")
	require.NoError(t, err)

	assert.Contains(t, out, "1. Chips (Wire)")
	assert.Contains(t, out, "3. Phones (Gadget)")
	assert.Contains(t, out, "Audio https://cdn.example/podcast-assets/")

	recordID := publishedID(t, out)

	store, err := docstore.Open(context.Background(), env.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	podcast, err := store.GetByID(context.Background(), recordID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(podcast.Title, "Technology News Briefing"))
	assert.Equal(t, "A casual technology news podcast covering 2 trending stories.", podcast.Description)
	assert.Equal(t, core.VoiceNova, podcast.Voice)
	assert.Equal(t, testScript, podcast.VoicePrompt)
	assert.Equal(t, "Ada", podcast.Author)
	assert.Positive(t, podcast.AudioDuration)

	msg, err := env.jetStream.GetLastMsg(notify.DefaultStream, notify.DefaultSubject)
	require.NoError(t, err)

	var event notify.PodcastPublishedEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, recordID, event.RecordID)
	assert.Equal(t, "user_1", event.Header.UserID)

	out, _, err = runCLI(t, "", "--config", env.configPath, "draft", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "No draft saved", "publishing discards the draft")
}

func TestCreateCommand_ResumesAfterFailure(t *testing.T) {
	env := setupStudioEnv(t)
	env.provider.failSpeech.Store(true)

	_, stderr, err := runCLI(t, "", "--config", env.configPath, "create",
		"--topic", "technology", "--voice", "onyx", "--author-id", "user_1")
	require.ErrorIs(t, err, core.ErrUpstream)
	assert.Contains(t, stderr, "Draft saved")

	out, _, err := runCLI(t, "", "--config", env.configPath, "draft", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Step:        media")
	assert.Contains(t, out, "Voice:       onyx")
	assert.Contains(t, out, "Articles:    3 (3 selected)")

	env.provider.failSpeech.Store(false)

	out, _, err = runCLI(t, "", "--config", env.configPath, "create", "--author-id", "user_1")
	require.NoError(t, err)
	assert.Contains(t, out, "Resuming draft at step media")
	publishedID(t, out)

	assert.Equal(t, int32(1), env.provider.searches.Load(), "the restored articles are reused")
	assert.Equal(t, int32(1), env.provider.scripts.Load(), "the restored script is reused")
}

func TestCreateCommand_RequiresAuthorToPublish(t *testing.T) {
	env := setupStudioEnv(t)

	_, _, err := runCLI(t, "", "--config", env.configPath, "create", "--topic", "science")
	require.ErrorIs(t, err, core.ErrUnauthenticated)

	out, _, err := runCLI(t, "", "--config", env.configPath, "draft", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Topic:       science")
}

func writeScriptFile(t *testing.T, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "episode.txt")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o600))

	return path
}

func TestCreateCommand_NarratesScriptFile(t *testing.T) {
	env := setupStudioEnv(t)
	script := "Hello listeners. This episode was written by hand."

	out, _, err := runCLI(t, "", "--config", env.configPath, "create",
		"--script", writeScriptFile(t, script), "--voice", "echo",
		"--title", "Field Notes", "--description", "A hand written episode.",
		"--image-prompt", "a microphone in a forest", "--author-id", "user_2")
	require.NoError(t, err)

	assert.NotContains(t, out, "1. Chips", "no news search in the manual flow")
	assert.Zero(t, env.provider.searches.Load())
	assert.Zero(t, env.provider.scripts.Load())
	assert.Positive(t, env.provider.speeches.Load())

	store, err := docstore.Open(context.Background(), env.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	podcast, err := store.GetByID(context.Background(), publishedID(t, out))
	require.NoError(t, err)
	assert.Equal(t, "Field Notes", podcast.Title)
	assert.Equal(t, "A hand written episode.", podcast.Description)
	assert.Equal(t, script, podcast.VoicePrompt)
	assert.Equal(t, core.VoiceEcho, podcast.Voice)
	assert.Equal(t, "a microphone in a forest", podcast.ImagePrompt)

	out, _, err = runCLI(t, "", "--config", env.configPath, "draft", "show", "--manual")
	require.NoError(t, err)
	assert.Contains(t, out, "No draft saved under castory.draft.podcast")
}

func TestCreateCommand_ScriptFileKeepsItsOwnDraft(t *testing.T) {
	env := setupStudioEnv(t)

	_, _, err := runCLI(t, "", "--config", env.configPath, "create", "--topic", "science")
	require.ErrorIs(t, err, core.ErrUnauthenticated)

	_, stderr, err := runCLI(t, "", "--config", env.configPath, "create",
		"--script", writeScriptFile(t, "A short hand written episode."),
		"--image-prompt", "a lighthouse", "--author-id", "user_2")
	require.ErrorIs(t, err, core.ErrValidation, "title and description are never generated")
	assert.Contains(t, stderr, "Draft saved")

	out, _, err := runCLI(t, "", "--config", env.configPath, "draft", "show", "--manual")
	require.NoError(t, err)
	assert.Contains(t, out, "Narration:   29 chars")
	assert.Contains(t, out, "Topic:       \n")

	out, _, err = runCLI(t, "", "--config", env.configPath, "draft", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Topic:       science", "the news draft is untouched")

	_, _, err = runCLI(t, "", "--config", env.configPath, "create",
		"--script", writeScriptFile(t, "x"), "--topic", "science")
	require.Error(t, err, "a script file replaces the news steps")
}
