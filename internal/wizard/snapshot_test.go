package wizard_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/book-expert/podcast-studio/internal/wizard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transientFields are the Session fields that must never reach a draft.
var transientFields = map[string]bool{
	"Audio":         true,
	"AudioDuration": true,
	"Image":         true,
	"Loading":       true,
}

func TestSnapshot_ClassifiesEverySessionField(t *testing.T) {
	t.Parallel()

	sessionType := reflect.TypeFor[wizard.Session]()
	snapshotType := reflect.TypeFor[wizard.Snapshot]()

	for i := range sessionType.NumField() {
		field := sessionType.Field(i)
		persisted, inSnapshot := snapshotType.FieldByName(field.Name)

		if transientFields[field.Name] {
			assert.False(t, inSnapshot, "transient field %s is persisted", field.Name)

			continue
		}

		if assert.True(t, inSnapshot, "field %s is neither persisted nor transient", field.Name) {
			assert.Equal(t, field.Type, persisted.Type, field.Name)
		}
	}

	assert.Equal(t, sessionType.NumField()-len(transientFields), snapshotType.NumField(),
		"snapshot holds a field the session does not have")
}

func TestSnapshotOf_ExcludesAssetsAndFlags(t *testing.T) {
	t.Parallel()

	session := mustApply(t, mediaSession(t), wizard.OperationStarted{Op: wizard.OpPublish})

	data, err := json.Marshal(wizard.SnapshotOf(session))
	require.NoError(t, err)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(data, &stored))

	assert.Equal(t, "technology", stored["selected_topic"])
	assert.InDelta(t, float64(wizard.StepMedia), stored["current_step"], 0)
	assert.Equal(t, "nova", stored["voice"])

	for _, leaked := range []string{testAudio.URL, testAudio.StorageID, testImage.URL} {
		assert.NotContains(t, string(data), leaked)
	}

	assert.NotContains(t, string(data), "Loading")
}

func TestApplySnapshot_RoundTrip(t *testing.T) {
	t.Parallel()

	original := mustApply(t, wizard.NewSession(),
		wizard.TopicSearched{Topic: "technology", Articles: testArticles(4)},
		wizard.ArticleToggled{Index: 1},
		wizard.ScriptGenerated{Script: "Hello listeners.", Date: testDate},
		wizard.ToneChanged{Tone: "formal"},
		wizard.DurationChanged{Duration: core.DurationShort},
		wizard.VoiceSelected{Voice: "echo"},
	)

	data, err := json.Marshal(wizard.SnapshotOf(original))
	require.NoError(t, err)

	var snapshot wizard.Snapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))

	restored := wizard.ApplySnapshot(snapshot)
	assert.Equal(t, wizard.SnapshotOf(original), wizard.SnapshotOf(restored))
	assert.False(t, restored.Audio.Valid())
	assert.False(t, restored.Loading.Any())
}

func TestApplySnapshot_ClampsStepToRestoredContent(t *testing.T) {
	t.Parallel()

	snapshot := wizard.SnapshotOf(mediaSession(t))
	snapshot.Step = wizard.StepPublish

	restored := wizard.ApplySnapshot(snapshot)
	assert.Equal(t, wizard.StepMedia, restored.Step, "media must be regenerated after a reload")

	snapshot.Script = ""
	restored = wizard.ApplySnapshot(snapshot)
	assert.Equal(t, wizard.StepArticles, restored.Step)

	snapshot.Articles = nil
	restored = wizard.ApplySnapshot(snapshot)
	assert.Equal(t, wizard.StepTopic, restored.Step)
}

func TestApplySnapshot_DropsInvalidValues(t *testing.T) {
	t.Parallel()

	restored := wizard.ApplySnapshot(wizard.Snapshot{
		Step:     wizard.StepArticles,
		Topic:    "science",
		Articles: testArticles(2),
		Selected: []int{7, 1, -1, 1},
		Tone:     "",
		Duration: "epic",
		Voice:    "robot",
	})

	assert.Equal(t, []int{1}, restored.Selected)
	assert.Equal(t, core.DefaultTone, restored.Tone)
	assert.Equal(t, core.DurationMedium, restored.Duration)
	assert.Empty(t, restored.Voice)
	assert.Equal(t, wizard.StepArticles, restored.Step)
}
