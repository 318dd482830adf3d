// Package wizard models the five-step news podcast authoring flow as one
// explicit session value and pure transitions over it.
package wizard

import "github.com/book-expert/podcast-studio/internal/core"

// Step is a position in the linear authoring flow.
type Step int

// Steps, in order.
const (
	StepTopic Step = iota
	StepArticles
	StepScript
	StepMedia
	StepPublish
)

var stepNames = [...]string{"topic", "articles", "script", "media", "publish"}

func (s Step) String() string {
	if s < StepTopic || s > StepPublish {
		return "unknown"
	}

	return stepNames[s]
}

// Operation names an external call the session can have outstanding.
type Operation string

// Operations.
const (
	OpSearch  Operation = "search"
	OpScript  Operation = "script"
	OpAudio   Operation = "audio"
	OpImage   Operation = "image"
	OpPublish Operation = "publish"
)

// Loading tracks which external calls are in flight.
type Loading struct {
	Search  bool
	Script  bool
	Audio   bool
	Image   bool
	Publish bool
}

// Any reports whether any call is outstanding.
func (l Loading) Any() bool {
	return l.Search || l.Script || l.Audio || l.Image || l.Publish
}

// Has reports whether op is outstanding.
func (l Loading) Has(op Operation) bool {
	if flag := l.flag(op); flag != nil {
		return *flag
	}

	return false
}

func (l *Loading) set(op Operation, value bool) bool {
	flag := l.flag(op)
	if flag == nil {
		return false
	}

	*flag = value

	return true
}

func (l *Loading) flag(op Operation) *bool {
	switch op {
	case OpSearch:
		return &l.Search
	case OpScript:
		return &l.Script
	case OpAudio:
		return &l.Audio
	case OpImage:
		return &l.Image
	case OpPublish:
		return &l.Publish
	default:
		return nil
	}
}

// Session is everything one author has entered or generated so far.
type Session struct {
	Step Step

	Topic    string
	Articles []core.Article
	// Selected holds indexes into Articles in ascending order.
	Selected []int

	Script   string
	Tone     string
	Duration core.Duration

	Title       string
	Description string
	Voice       core.Voice
	VoicePrompt string
	ImagePrompt string

	Audio         core.AssetReference
	AudioDuration float64
	Image         core.AssetReference

	Loading Loading
}

// NewSession returns a session at the first step with default choices.
func NewSession() Session {
	return Session{
		Step:     StepTopic,
		Tone:     core.DefaultTone,
		Duration: core.DurationMedium,
	}
}

// SelectedArticles returns the selected articles in index order.
func (s Session) SelectedArticles() []core.Article {
	selected := make([]core.Article, 0, len(s.Selected))
	for _, index := range s.Selected {
		if index >= 0 && index < len(s.Articles) {
			selected = append(selected, s.Articles[index])
		}
	}

	return selected
}

// Submitting reports whether a publish is in flight.
func (s Session) Submitting() bool {
	return s.Loading.Publish
}

// SpeechText is the text audio is generated from: the voice prompt when set,
// otherwise the script.
func (s Session) SpeechText() string {
	if trimmed(s.VoicePrompt) != "" {
		return s.VoicePrompt
	}

	return s.Script
}

// Record builds the document submitted on publish.
func (s Session) Record() core.PodcastRecord {
	return core.PodcastRecord{
		Title:         trimmed(s.Title),
		Description:   trimmed(s.Description),
		Audio:         s.Audio,
		Image:         s.Image,
		Voice:         s.Voice,
		VoicePrompt:   s.Script,
		ImagePrompt:   s.ImagePrompt,
		AudioDuration: s.AudioDuration,
		Views:         0,
	}
}
