package docstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/book-expert/podcast-studio/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.DocumentStore = (*docstore.Store)(nil)

func openTestStore(t *testing.T) *docstore.Store {
	t.Helper()

	store, err := docstore.Open(context.Background(), filepath.Join(t.TempDir(), "db", "podcasts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testRecord(title string, voice core.Voice) core.PodcastRecord {
	return core.PodcastRecord{
		Title:         title,
		Description:   "A casual technology news podcast covering 3 trending stories.",
		Audio:         core.AssetReference{URL: "https://cdn.example/a", StorageID: "a"},
		Image:         core.AssetReference{URL: "https://cdn.example/i", StorageID: "i"},
		Voice:         voice,
		VoicePrompt:   "Welcome to the show.",
		ImagePrompt:   "A bold, modern podcast cover art.",
		AudioDuration: 312.5,
	}
}

func titles(podcasts []docstore.Podcast) []string {
	out := make([]string, 0, len(podcasts))
	for _, podcast := range podcasts {
		out = append(out, podcast.Title)
	}

	return out
}

func TestOpen_ReappliesMigrationsIdempotently(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "podcasts.db")

	first, err := docstore.Open(ctx, path)
	require.NoError(t, err)

	id, err := first.CreateRecord(ctx, core.Identity{Subject: "user_1"}, testRecord("Kept", core.VoiceAlloy))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := docstore.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	podcast, err := second.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Kept", podcast.Title)
	assert.Equal(t, path, second.Path())
}

func TestCreateRecord_RequiresIdentity(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	_, err := store.CreateRecord(context.Background(), core.Identity{}, testRecord("Anonymous", core.VoiceNova))
	require.ErrorIs(t, err, core.ErrUnauthenticated)

	all, err := store.SearchByTitle(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateRecord_ValidatesRecord(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	identity := core.Identity{Subject: "user_1"}

	halfAudio := testRecord("Half", core.VoiceNova)
	halfAudio.Audio.StorageID = ""

	untitled := testRecord("  ", core.VoiceNova)

	for _, record := range []core.PodcastRecord{halfAudio, untitled, testRecord("No voice", "")} {
		_, err := store.CreateRecord(context.Background(), identity, record)
		require.ErrorIs(t, err, core.ErrValidation)
	}
}

func TestCreateRecord_SynthesizesUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		identity  core.Identity
		wantEmail string
		wantName  string
	}{
		{
			name:      "full claims",
			identity:  core.Identity{Subject: "user_a", Email: "ada@example.com", Name: "Ada", PictureURL: "https://img/a"},
			wantEmail: "ada@example.com",
			wantName:  "Ada",
		},
		{
			name:      "name from email",
			identity:  core.Identity{Subject: "user_b", Email: "grace@example.com"},
			wantEmail: "grace@example.com",
			wantName:  "grace",
		},
		{
			name:      "subject only",
			identity:  core.Identity{Subject: "user_c"},
			wantEmail: "user_c@clerk.user",
			wantName:  "Unknown",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := openTestStore(t)

			podcastID, err := store.CreateRecord(ctx, testCase.identity, testRecord("Daily", core.VoiceEcho))
			require.NoError(t, err)

			user, err := store.UserBySubject(ctx, testCase.identity.Subject)
			require.NoError(t, err)
			require.NotNil(t, user)
			assert.Equal(t, testCase.wantEmail, user.Email)
			assert.Equal(t, testCase.wantName, user.Name)

			podcast, err := store.GetByID(ctx, podcastID)
			require.NoError(t, err)
			assert.Equal(t, user.ID, podcast.UserID)
			assert.Equal(t, testCase.wantName, podcast.Author)
			assert.Equal(t, testCase.identity.Subject, podcast.AuthorID)
			assert.Equal(t, testCase.identity.PictureURL, podcast.AuthorImageURL)
		})
	}
}

func TestCreateRecord_ReusesExistingUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.CreateRecord(ctx, core.Identity{Subject: "user_1", Name: "First"}, testRecord("One", core.VoiceAlloy))
	require.NoError(t, err)

	_, err = store.CreateRecord(ctx, core.Identity{Subject: "user_1", Name: "Renamed"}, testRecord("Two", core.VoiceAlloy))
	require.NoError(t, err)

	podcasts, err := store.ListByAuthor(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, podcasts, 2)
	assert.Equal(t, podcasts[0].UserID, podcasts[1].UserID)
	assert.Equal(t, "First", podcasts[0].Author)

	missing, err := store.UserBySubject(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetByID_StoresEveryField(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	record := testRecord("Full", core.VoiceFable)

	podcastID, err := store.CreateRecord(ctx, core.Identity{Subject: "user_1"}, record)
	require.NoError(t, err)

	podcast, err := store.GetByID(ctx, podcastID)
	require.NoError(t, err)
	assert.Equal(t, record.Title, podcast.Title)
	assert.Equal(t, record.Description, podcast.Description)
	assert.Equal(t, record.Audio.URL, podcast.AudioURL)
	assert.Equal(t, record.Audio.StorageID, podcast.AudioStorageID)
	assert.Equal(t, record.Image.URL, podcast.ImageURL)
	assert.Equal(t, record.Image.StorageID, podcast.ImageStorageID)
	assert.Equal(t, record.VoicePrompt, podcast.VoicePrompt)
	assert.Equal(t, record.ImagePrompt, podcast.ImagePrompt)
	assert.Equal(t, core.VoiceFable, podcast.Voice)
	assert.InDelta(t, 312.5, podcast.AudioDuration, 0.001)
	assert.Zero(t, podcast.Views)
	assert.False(t, podcast.CreatedAt.IsZero())

	_, err = store.GetByID(ctx, "missing")
	require.ErrorIs(t, err, docstore.ErrPodcastNotFound)
}

func TestIncrementViews_AndTrending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	identity := core.Identity{Subject: "user_1"}

	quiet, err := store.CreateRecord(ctx, identity, testRecord("Quiet", core.VoiceAlloy))
	require.NoError(t, err)

	popular, err := store.CreateRecord(ctx, identity, testRecord("Popular", core.VoiceAlloy))
	require.NoError(t, err)

	_, err = store.CreateRecord(ctx, identity, testRecord("Newest", core.VoiceAlloy))
	require.NoError(t, err)

	for range 3 {
		require.NoError(t, store.IncrementViews(ctx, popular))
	}

	require.NoError(t, store.IncrementViews(ctx, quiet))
	require.ErrorIs(t, store.IncrementViews(ctx, "missing"), docstore.ErrPodcastNotFound)

	trending, err := store.Trending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Popular", "Quiet", "Newest"}, titles(trending))
	assert.Equal(t, 3, trending[0].Views)

	top, err := store.Trending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Popular"}, titles(top))
}

func TestSearchByTitle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	identity := core.Identity{Subject: "user_1"}

	for _, title := range []string{"Technology Briefing", "Science Weekly", "100% Tech"} {
		_, err := store.CreateRecord(ctx, identity, testRecord(title, core.VoiceAlloy))
		require.NoError(t, err)
	}

	all, err := store.SearchByTitle(ctx, "  ")
	require.NoError(t, err)
	assert.Equal(t, []string{"100% Tech", "Science Weekly", "Technology Briefing"}, titles(all))

	tech, err := store.SearchByTitle(ctx, "tech")
	require.NoError(t, err)
	assert.Equal(t, []string{"100% Tech", "Technology Briefing"}, titles(tech))

	literal, err := store.SearchByTitle(ctx, "0%")
	require.NoError(t, err)
	assert.Equal(t, []string{"100% Tech"}, titles(literal))

	none, err := store.SearchByTitle(ctx, "_")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListByVoice_ExcludesTheGivenPodcast(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)
	identity := core.Identity{Subject: "user_1"}

	first, err := store.CreateRecord(ctx, identity, testRecord("Nova One", core.VoiceNova))
	require.NoError(t, err)

	_, err = store.CreateRecord(ctx, identity, testRecord("Nova Two", core.VoiceNova))
	require.NoError(t, err)

	_, err = store.CreateRecord(ctx, identity, testRecord("Onyx", core.VoiceOnyx))
	require.NoError(t, err)

	similar, err := store.ListByVoice(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nova Two"}, titles(similar))

	_, err = store.ListByVoice(ctx, "missing")
	require.ErrorIs(t, err, docstore.ErrPodcastNotFound)
}
