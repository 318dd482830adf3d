package wizard

import (
	"slices"

	"github.com/book-expert/podcast-studio/internal/core"
)

// Snapshot is the part of a Session that survives a reload. It holds author
// inputs only: stored asset references, their measured duration and the
// loading flags are left out, so a restored session must regenerate media.
//
// Every Session field must be listed either here or in transientFields in
// snapshot_test.go, so a new field is never persisted by accident.
type Snapshot struct {
	Step        Step           `json:"current_step"`
	Topic       string         `json:"selected_topic"`
	Articles    []core.Article `json:"articles"`
	Selected    []int          `json:"selected_article_indexes"`
	Script      string         `json:"script"`
	Tone        string         `json:"tone"`
	Duration    core.Duration  `json:"duration"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Voice       core.Voice     `json:"voice"`
	VoicePrompt string         `json:"voice_prompt"`
	ImagePrompt string         `json:"image_prompt"`
}

// SnapshotOf projects s onto the persisted allow-list.
func SnapshotOf(s Session) Snapshot {
	return Snapshot{
		Step:        s.Step,
		Topic:       s.Topic,
		Articles:    slices.Clone(s.Articles),
		Selected:    slices.Clone(s.Selected),
		Script:      s.Script,
		Tone:        s.Tone,
		Duration:    s.Duration,
		Title:       s.Title,
		Description: s.Description,
		Voice:       s.Voice,
		VoicePrompt: s.VoicePrompt,
		ImagePrompt: s.ImagePrompt,
	}
}

// ApplySnapshot hydrates a fresh session from a stored snapshot. Values that
// would not pass the session's own rules are dropped: unknown voices and
// durations fall back to defaults, out-of-range selections are removed, and
// the step is the furthest one the restored content can reach.
func ApplySnapshot(snapshot Snapshot) Session {
	session := NewSession()

	session.Topic = snapshot.Topic
	session.Articles = slices.Clone(snapshot.Articles)
	session.Selected = validSelection(snapshot.Selected, len(session.Articles))
	session.Script = snapshot.Script
	session.Title = snapshot.Title
	session.Description = snapshot.Description
	session.VoicePrompt = snapshot.VoicePrompt
	session.ImagePrompt = snapshot.ImagePrompt

	for _, event := range []Event{
		ToneChanged{Tone: snapshot.Tone},
		DurationChanged{Duration: snapshot.Duration},
		VoiceSelected{Voice: string(snapshot.Voice)},
	} {
		// Rejected values keep the defaults.
		if next, err := Apply(session, event); err == nil {
			session = next
		}
	}

	for session.Step < snapshot.Step && CanAdvance(session) == nil {
		session.Step++
	}

	return session
}

func validSelection(indexes []int, count int) []int {
	selected := make([]int, 0, len(indexes))
	for _, index := range indexes {
		if index >= 0 && index < count {
			selected = append(selected, index)
		}
	}

	slices.Sort(selected)
	selected = slices.Compact(selected)

	if len(selected) == 0 {
		return nil
	}

	return selected
}
