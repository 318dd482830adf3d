package wizard

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/book-expert/podcast-studio/internal/core"
)

const (
	opApply   = "apply"
	opAdvance = "advance"
	opPublish = "publish"

	titleDateLayout   = "1/2/2006"
	titleFormat       = "%s News Briefing — %s"
	descriptionFormat = "A %s %s news podcast covering %d trending stories."
	imagePromptFormat = "A bold, modern podcast cover art for a %[1]s news podcast. " +
		"Dark background with vibrant orange accents. Abstract geometric shapes suggesting %[1]s themes. " +
		"Bold typography style. Professional and eye-catching."
)

// Event is an input to the state machine.
type Event interface {
	apply(s Session) (Session, error)
}

// TopicSearched carries a completed topic search. All results start
// selected and the flow moves on to the article review.
type TopicSearched struct {
	Topic    string
	Articles []core.Article
}

// ArticleToggled flips the selection of one article.
type ArticleToggled struct{ Index int }

// ArticlesSelectedAll selects every article.
type ArticlesSelectedAll struct{}

// ArticlesCleared deselects every article.
type ArticlesCleared struct{}

// ScriptGenerated carries a successful script generation. Empty details are
// filled in from the topic; Date stamps the generated title.
type ScriptGenerated struct {
	Script string
	Date   time.Time
}

// ScriptEdited replaces the script by hand. Only a generated script can be
// edited, so it is refused before the script step.
type ScriptEdited struct{ Script string }

// ToneChanged picks a tone label. Empty means the default tone.
type ToneChanged struct{ Tone string }

// DurationChanged picks a target length band.
type DurationChanged struct{ Duration core.Duration }

// DetailsEdited sets the title and description.
type DetailsEdited struct {
	Title       string
	Description string
}

// VoiceSelected picks the speech voice.
type VoiceSelected struct{ Voice string }

// VoicePromptEdited sets the text audio is generated from.
type VoicePromptEdited struct{ Prompt string }

// ImagePromptEdited sets the cover art prompt.
type ImagePromptEdited struct{ Prompt string }

// AudioPublished installs a freshly stored audio asset.
type AudioPublished struct {
	Audio    core.AssetReference
	Duration float64
}

// ImagePublished installs a freshly stored cover image.
type ImagePublished struct{ Image core.AssetReference }

// ImageCleared removes the cover image.
type ImageCleared struct{}

// Advanced moves one step forward when the current step's guard holds.
type Advanced struct{}

// SteppedBack moves one step back. It is always allowed.
type SteppedBack struct{}

// OperationStarted marks an external call as outstanding.
type OperationStarted struct{ Op Operation }

// OperationFinished clears an outstanding call, whatever its outcome.
type OperationFinished struct{ Op Operation }

// Apply returns the session that results from event. On error the returned
// session is the input, unchanged. The input is never mutated.
func Apply(s Session, event Event) (Session, error) {
	if event == nil {
		return s, core.Wrap(core.ErrValidation, opApply, "no event", nil)
	}

	next, err := event.apply(s.clone())
	if err != nil {
		return s, err
	}

	return next, nil
}

// CanAdvance checks the forward guard of the current step.
func CanAdvance(s Session) error {
	switch s.Step {
	case StepTopic:
		if len(s.Articles) == 0 {
			return invalid(opAdvance, "search for a topic with results first")
		}
	case StepArticles:
		if len(s.Selected) == 0 {
			return invalid(opAdvance, "select at least one article")
		}

		if trimmed(s.Script) == "" {
			return invalid(opAdvance, "generate a script first")
		}
	case StepScript:
		if trimmed(s.Script) == "" {
			return invalid(opAdvance, "script cannot be empty")
		}
	case StepMedia:
		return mediaReady(s, opAdvance)
	case StepPublish:
		return invalid(opAdvance, "already at the last step")
	default:
		return invalid(opAdvance, "unknown step")
	}

	return nil
}

// ReadyToPublish checks everything a publish needs.
func ReadyToPublish(s Session) error {
	err := mediaReady(s, opPublish)
	if err != nil {
		return err
	}

	if trimmed(s.Title) == "" {
		return invalid(opPublish, "title is required")
	}

	if trimmed(s.Description) == "" {
		return invalid(opPublish, "description is required")
	}

	return nil
}

func mediaReady(s Session, operation string) error {
	switch {
	case !s.Audio.Valid():
		return invalid(operation, "generate the audio first")
	case !s.Image.Valid():
		return invalid(operation, "generate or upload a cover image first")
	case s.Voice == "":
		return invalid(operation, "select a voice")
	}

	return nil
}

func (e TopicSearched) apply(s Session) (Session, error) {
	topic := trimmed(e.Topic)
	if topic == "" {
		return s, invalid(opApply, "topic cannot be empty")
	}

	s.Topic = topic
	s.Articles = slices.Clone(e.Articles)
	s.Selected = allIndexes(len(s.Articles))

	if s.Step == StepTopic && len(s.Articles) > 0 {
		s.Step = StepArticles
	}

	return s, nil
}

func (e ArticleToggled) apply(s Session) (Session, error) {
	if e.Index < 0 || e.Index >= len(s.Articles) {
		return s, invalid(opApply, fmt.Sprintf("article %d does not exist", e.Index))
	}

	if position, found := slices.BinarySearch(s.Selected, e.Index); found {
		s.Selected = slices.Delete(s.Selected, position, position+1)
	} else {
		s.Selected = slices.Insert(s.Selected, position, e.Index)
	}

	return s, nil
}

func (ArticlesSelectedAll) apply(s Session) (Session, error) {
	s.Selected = allIndexes(len(s.Articles))

	return s, nil
}

func (ArticlesCleared) apply(s Session) (Session, error) {
	s.Selected = nil

	return s, nil
}

func (e ScriptGenerated) apply(s Session) (Session, error) {
	if trimmed(e.Script) == "" {
		return s, invalid(opApply, "generated script is empty")
	}

	s.Script = e.Script
	s.VoicePrompt = e.Script

	if trimmed(s.Title) == "" {
		s.Title = fmt.Sprintf(titleFormat, capitalize(s.Topic), e.Date.Format(titleDateLayout))
	}

	if trimmed(s.Description) == "" {
		s.Description = fmt.Sprintf(descriptionFormat, s.Tone, s.Topic, len(s.Selected))
	}

	if trimmed(s.ImagePrompt) == "" {
		s.ImagePrompt = fmt.Sprintf(imagePromptFormat, s.Topic)
	}

	if s.Step == StepArticles && len(s.Selected) > 0 {
		s.Step = StepScript
	}

	return s, nil
}

func (e ScriptEdited) apply(s Session) (Session, error) {
	if s.Step < StepScript {
		return s, invalid(opApply, "generate a script before editing it")
	}

	s.Script = e.Script
	s.VoicePrompt = e.Script

	return s, nil
}

func (e ToneChanged) apply(s Session) (Session, error) {
	s.Tone = trimmed(e.Tone)
	if s.Tone == "" {
		s.Tone = core.DefaultTone
	}

	return s, nil
}

func (e DurationChanged) apply(s Session) (Session, error) {
	switch e.Duration {
	case core.DurationShort, core.DurationMedium, core.DurationLong:
		s.Duration = e.Duration

		return s, nil
	default:
		return s, invalid(opApply, fmt.Sprintf("unsupported duration '%s'", e.Duration))
	}
}

func (e DetailsEdited) apply(s Session) (Session, error) {
	s.Title = e.Title
	s.Description = e.Description

	return s, nil
}

func (e VoiceSelected) apply(s Session) (Session, error) {
	voice, err := core.ParseVoice(e.Voice)
	if err != nil {
		return s, core.Wrap(core.ErrValidation, opApply, "", err)
	}

	s.Voice = voice

	return s, nil
}

func (e VoicePromptEdited) apply(s Session) (Session, error) {
	s.VoicePrompt = e.Prompt

	return s, nil
}

func (e ImagePromptEdited) apply(s Session) (Session, error) {
	s.ImagePrompt = e.Prompt

	return s, nil
}

func (e AudioPublished) apply(s Session) (Session, error) {
	if !e.Audio.Valid() {
		return s, invalid(opApply, "audio reference is incomplete")
	}

	s.Audio = e.Audio
	s.AudioDuration = e.Duration

	return s, nil
}

func (e ImagePublished) apply(s Session) (Session, error) {
	if !e.Image.Valid() {
		return s, invalid(opApply, "image reference is incomplete")
	}

	s.Image = e.Image

	return s, nil
}

func (ImageCleared) apply(s Session) (Session, error) {
	s.Image = core.AssetReference{}

	return s, nil
}

func (Advanced) apply(s Session) (Session, error) {
	err := CanAdvance(s)
	if err != nil {
		return s, err
	}

	s.Step++

	return s, nil
}

func (SteppedBack) apply(s Session) (Session, error) {
	if s.Step > StepTopic {
		s.Step--
	}

	return s, nil
}

func (e OperationStarted) apply(s Session) (Session, error) {
	if s.Loading.Has(e.Op) {
		return s, core.Wrap(core.ErrInFlight, string(e.Op), "", nil)
	}

	if !s.Loading.set(e.Op, true) {
		return s, invalid(opApply, fmt.Sprintf("unknown operation '%s'", e.Op))
	}

	return s, nil
}

func (e OperationFinished) apply(s Session) (Session, error) {
	s.Loading.set(e.Op, false)

	return s, nil
}

// clone copies the slices so transitions never share backing arrays with
// the caller's session.
func (s Session) clone() Session {
	s.Articles = slices.Clone(s.Articles)
	s.Selected = slices.Clone(s.Selected)

	return s
}

func allIndexes(n int) []int {
	if n == 0 {
		return nil
	}

	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i
	}

	return indexes
}

func capitalize(value string) string {
	first, size := utf8.DecodeRuneInString(value)
	if size == 0 {
		return value
	}

	return string(unicode.ToUpper(first)) + value[size:]
}

func trimmed(value string) string {
	return strings.TrimSpace(value)
}

func invalid(operation, message string) error {
	return core.Wrap(core.ErrValidation, operation, message, nil)
}
