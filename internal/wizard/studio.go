package wizard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/book-expert/podcast-studio/internal/draft"
	"github.com/book-expert/podcast-studio/internal/tts"
)

// DefaultArticleCount is how many articles a topic search asks for.
const DefaultArticleCount = 5

const (
	opSearch      = "search topic"
	opScript      = "generate script"
	opAudio       = "generate audio"
	opImage       = "generate image"
	opUpload      = "upload image"
	opDiscard     = "discard draft"
	opSave        = "save draft"
	opNewStudio   = "new studio"
	logFmtFailed  = "%s failed: %v"
	logFmtNotify  = "Podcast %s published but the announcement failed: %v"
	logFmtRestore = "Restored draft %s at step %s"
)

// Synthesizer produces finished audio and image assets.
type Synthesizer interface {
	SynthesizeAudio(ctx context.Context, script string, voice core.Voice) (core.Asset, error)
	SynthesizeImage(ctx context.Context, prompt string) (core.Asset, error)
}

// AssetPublisher stores a finished asset and returns its paired reference.
type AssetPublisher interface {
	PublishAsset(ctx context.Context, asset core.Asset) (core.AssetReference, error)
}

// Dependencies are the collaborators a Studio drives. Events is optional.
type Dependencies struct {
	News      core.NewsSearcher
	Scripts   core.ScriptGenerator
	Engine    Synthesizer
	Publisher AssetPublisher
	Documents core.DocumentStore
	Events    core.EventPublisher
	Drafts    core.KeyValueStore
}

// Options tunes a Studio. Zero values select the defaults.
type Options struct {
	DraftKey     string
	Draft        draft.Options
	ArticleCount int
	BitrateKbps  int
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DraftKey == "" {
		o.DraftKey = draft.DefaultKey
	}

	if o.ArticleCount <= 0 {
		o.ArticleCount = DefaultArticleCount
	}

	if o.BitrateKbps <= 0 {
		o.BitrateKbps = tts.DefaultBitrateKbps
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	return o
}

// Studio runs one authoring session. State changes are applied under a lock
// and persisted as drafts; external calls run outside it, so the author can
// keep editing or step back while a generation is outstanding.
type Studio struct {
	deps      Dependencies
	opts      Options
	logger    *logger.Logger
	persister *draft.Persister
	restored  bool

	mu      sync.Mutex
	session Session
	watched Snapshot
	closed  bool
}

// NewStudio starts a session, restoring the draft stored under the
// configured key when there is one.
func NewStudio(ctx context.Context, deps Dependencies, opts Options, log *logger.Logger) (*Studio, error) {
	err := validateDependencies(deps)
	if err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	studio := &Studio{
		deps:    deps,
		opts:    opts,
		logger:  log,
		session: NewSession(),
	}

	var snapshot Snapshot
	if draft.Read(ctx, deps.Drafts, opts.DraftKey, &snapshot) {
		studio.session = ApplySnapshot(snapshot)
		studio.restored = true
		log.Info(logFmtRestore, opts.DraftKey, studio.session.Step)
	}

	studio.watched = SnapshotOf(studio.session)
	studio.persister = draft.NewPersister(deps.Drafts, opts.DraftKey, opts.Draft, log)

	return studio, nil
}

func validateDependencies(deps Dependencies) error {
	missing := ""

	switch {
	case deps.News == nil:
		missing = "news searcher"
	case deps.Scripts == nil:
		missing = "script generator"
	case deps.Engine == nil:
		missing = "synthesis engine"
	case deps.Publisher == nil:
		missing = "asset publisher"
	case deps.Documents == nil:
		missing = "document store"
	case deps.Drafts == nil:
		missing = "draft store"
	}

	if missing != "" {
		return core.Wrap(core.ErrConfiguration, opNewStudio, missing+" is required", nil)
	}

	return nil
}

// Restored reports whether the session was hydrated from a draft.
func (s *Studio) Restored() bool {
	return s.restored
}

// Session returns a copy of the current session.
func (s *Studio) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.session.clone()
}

// UnloadGuard reports whether leaving now would abandon an outstanding call.
func (s *Studio) UnloadGuard() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.session.Loading.Any()
}

// LastSaved returns when the draft was last written.
func (s *Studio) LastSaved() (time.Time, bool) {
	return s.persister.LastSaved()
}

// SearchTopic looks up trending articles for topic and selects all of them.
func (s *Studio) SearchTopic(ctx context.Context, topic string) error {
	if trimmed(topic) == "" {
		return invalid(opSearch, "topic cannot be empty")
	}

	_, err := s.begin(OpSearch)
	if err != nil {
		return err
	}

	articles, err := s.deps.News.SearchNews(ctx, trimmed(topic), s.opts.ArticleCount)
	if err != nil {
		return s.abort(OpSearch, opSearch, err)
	}

	return s.finish(OpSearch, TopicSearched{Topic: topic, Articles: articles})
}

// ToggleArticle flips the selection of the article at index.
func (s *Studio) ToggleArticle(index int) error {
	return s.mutate(ArticleToggled{Index: index})
}

// SelectAllArticles selects every article.
func (s *Studio) SelectAllArticles() error {
	return s.mutate(ArticlesSelectedAll{})
}

// ClearArticles deselects every article.
func (s *Studio) ClearArticles() error {
	return s.mutate(ArticlesCleared{})
}

// GenerateScript writes a script from the selected articles.
func (s *Studio) GenerateScript(ctx context.Context) error {
	session, err := s.begin(OpScript)
	if err != nil {
		return err
	}

	articles := session.SelectedArticles()
	if len(articles) == 0 {
		return s.abort(OpScript, opScript, invalid(opScript, "select at least one article"))
	}

	script, err := s.deps.Scripts.GenerateScript(ctx, core.ScriptRequest{
		Topic:    session.Topic,
		Articles: articles,
		Tone:     session.Tone,
		Duration: session.Duration,
	})
	if err != nil {
		return s.abort(OpScript, opScript, err)
	}

	return s.finish(OpScript, ScriptGenerated{Script: script, Date: s.opts.Now()})
}

// EditScript replaces a generated script by hand.
func (s *Studio) EditScript(script string) error {
	return s.mutate(ScriptEdited{Script: script})
}

// SetTone picks the script tone.
func (s *Studio) SetTone(tone string) error {
	return s.mutate(ToneChanged{Tone: tone})
}

// SetDuration picks the script length band.
func (s *Studio) SetDuration(duration core.Duration) error {
	return s.mutate(DurationChanged{Duration: duration})
}

// EditDetails sets the title and description.
func (s *Studio) EditDetails(title, description string) error {
	return s.mutate(DetailsEdited{Title: title, Description: description})
}

// SelectVoice picks the speech voice.
func (s *Studio) SelectVoice(voice string) error {
	return s.mutate(VoiceSelected{Voice: voice})
}

// EditVoicePrompt sets the text audio is generated from.
func (s *Studio) EditVoicePrompt(prompt string) error {
	return s.mutate(VoicePromptEdited{Prompt: prompt})
}

// EditImagePrompt sets the cover art prompt.
func (s *Studio) EditImagePrompt(prompt string) error {
	return s.mutate(ImagePromptEdited{Prompt: prompt})
}

// GenerateAudio synthesizes the speech text with the selected voice and
// stores it. The previous audio stays in place until the new reference is
// complete.
func (s *Studio) GenerateAudio(ctx context.Context) error {
	session, err := s.begin(OpAudio)
	if err != nil {
		return err
	}

	switch {
	case session.Voice == "":
		return s.abort(OpAudio, opAudio, invalid(opAudio, "select a voice"))
	case trimmed(session.SpeechText()) == "":
		return s.abort(OpAudio, opAudio, invalid(opAudio, "script cannot be empty"))
	}

	asset, err := s.deps.Engine.SynthesizeAudio(ctx, session.SpeechText(), session.Voice)
	if err != nil {
		return s.abort(OpAudio, opAudio, err)
	}

	reference, err := s.deps.Publisher.PublishAsset(ctx, asset)
	if err != nil {
		return s.abort(OpAudio, opAudio, err)
	}

	return s.finish(OpAudio, AudioPublished{
		Audio:    reference,
		Duration: tts.EstimateDuration(asset, s.opts.BitrateKbps),
	})
}

// GenerateImage renders the image prompt and stores it as the cover.
func (s *Studio) GenerateImage(ctx context.Context) error {
	session, err := s.begin(OpImage)
	if err != nil {
		return err
	}

	if trimmed(session.ImagePrompt) == "" {
		return s.abort(OpImage, opImage, invalid(opImage, "image prompt cannot be empty"))
	}

	asset, err := s.deps.Engine.SynthesizeImage(ctx, session.ImagePrompt)
	if err != nil {
		return s.abort(OpImage, opImage, err)
	}

	return s.storeImage(ctx, asset)
}

// UploadImage stores an author-supplied cover. An empty content type is
// detected from the data.
func (s *Studio) UploadImage(ctx context.Context, data []byte, contentType string) error {
	if len(data) == 0 {
		return invalid(opUpload, "image is empty")
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	_, err := s.begin(OpImage)
	if err != nil {
		return err
	}

	return s.storeImage(ctx, core.Asset{Data: data, ContentType: contentType, Segments: 1})
}

func (s *Studio) storeImage(ctx context.Context, asset core.Asset) error {
	reference, err := s.deps.Publisher.PublishAsset(ctx, asset)
	if err != nil {
		return s.abort(OpImage, opImage, err)
	}

	return s.finish(OpImage, ImagePublished{Image: reference})
}

// ClearImage removes the cover image.
func (s *Studio) ClearImage() error {
	return s.mutate(ImageCleared{})
}

// Advance moves to the next step when its guard holds.
func (s *Studio) Advance() error {
	return s.mutate(Advanced{})
}

// Back moves to the previous step. Generated media is kept.
func (s *Studio) Back() error {
	return s.mutate(SteppedBack{})
}

// Publish submits the finished podcast on behalf of identity and returns the
// record id. On success the draft is discarded and the studio is closed; on
// failure the session is left as it was so the author can retry.
func (s *Studio) Publish(ctx context.Context, identity core.Identity) (string, error) {
	session, err := s.beginPublish()
	if err != nil {
		return "", err
	}

	recordID, err := s.deps.Documents.CreateRecord(ctx, identity, session.Record())
	if err != nil {
		return "", s.abort(OpPublish, opPublish, err)
	}

	s.mu.Lock()
	s.closed = true
	s.session = NewSession()
	s.watched = SnapshotOf(s.session)
	s.mu.Unlock()

	s.persister.Discard(ctx)
	s.persister.Close()

	s.announce(ctx, identity, recordID, session)

	return recordID, nil
}

func (s *Studio) beginPublish() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Session{}, closedError(opPublish)
	}

	err := ReadyToPublish(s.session)
	if err != nil {
		return Session{}, err
	}

	next, err := Apply(s.session, OperationStarted{Op: OpPublish})
	if err != nil {
		return Session{}, err
	}

	s.commit(next)

	return next.clone(), nil
}

func (s *Studio) announce(ctx context.Context, identity core.Identity, recordID string, session Session) {
	if s.deps.Events == nil {
		return
	}

	err := s.deps.Events.PublishPodcast(ctx, core.PublishedPodcast{
		RecordID:    recordID,
		Title:       trimmed(session.Title),
		AuthorID:    identity.Subject,
		AudioURL:    session.Audio.URL,
		ImageURL:    session.Image.URL,
		PublishedAt: s.opts.Now(),
	})
	if err != nil {
		s.logger.Warn(logFmtNotify, recordID, err)
	}
}

// Discard resets the session and deletes its draft. It is refused while a
// call is outstanding.
func (s *Studio) Discard(ctx context.Context) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return closedError(opDiscard)
	}

	if s.session.Loading.Any() {
		s.mu.Unlock()

		return core.Wrap(core.ErrInFlight, opDiscard, "", nil)
	}

	s.session = NewSession()
	s.watched = SnapshotOf(s.session)
	s.mu.Unlock()

	s.persister.Discard(ctx)

	return nil
}

// Save writes the draft now instead of waiting for pending changes to settle.
// Clients that exit right after a change call it before Close, which drops
// unwritten changes.
func (s *Studio) Save() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return closedError(opSave)
	}

	s.persister.Flush()

	return nil
}

// Close ends the session without touching the stored draft. Results of calls
// still outstanding are dropped.
func (s *Studio) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.persister.Close()
}

func (s *Studio) mutate(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return closedError(opApply)
	}

	next, err := Apply(s.session, event)
	if err != nil {
		return err
	}

	s.commit(next)

	return nil
}

// begin marks op as outstanding and returns the session the call should work
// from.
func (s *Studio) begin(op Operation) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Session{}, closedError(string(op))
	}

	next, err := Apply(s.session, OperationStarted{Op: op})
	if err != nil {
		return Session{}, err
	}

	s.commit(next)

	return next.clone(), nil
}

// finish applies the results of op and clears its loading flag. Results are
// applied together or not at all, and are dropped once the studio is closed.
func (s *Studio) finish(op Operation, results ...Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return closedError(string(op))
	}

	next := s.session

	var resultErr error

	for _, result := range results {
		applied, err := Apply(next, result)
		if err != nil {
			next, resultErr = s.session, err

			break
		}

		next = applied
	}

	next, _ = Apply(next, OperationFinished{Op: op})
	s.commit(next)

	return resultErr
}

// abort clears the loading flag of op and reports err, classified. When the
// studio was closed meanwhile, the result carries both markers.
func (s *Studio) abort(op Operation, operation string, err error) error {
	s.logger.Error(logFmtFailed, operation, err)

	classified := core.Wrap(core.ErrUpstream, operation, "", err)
	if core.MarkerOf(err) != nil {
		classified = fmt.Errorf("%s: %w", operation, err)
	}

	finishErr := s.finish(op)
	if finishErr != nil {
		return errors.Join(finishErr, classified)
	}

	return classified
}

// commit installs next and hands its snapshot to the persister when the
// persisted projection changed. Caller holds s.mu.
func (s *Studio) commit(next Session) {
	s.session = next

	snapshot := SnapshotOf(next)
	if reflect.DeepEqual(snapshot, s.watched) {
		return
	}

	s.watched = snapshot
	s.persister.Watch(snapshot)
}

func closedError(operation string) error {
	return core.Wrap(core.ErrSessionClosed, operation, "", nil)
}
