package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/book-expert/podcast-studio/internal/notify"
	"github.com/book-expert/podcast-studio/internal/publisher"
	"github.com/book-expert/podcast-studio/internal/tts"
	"github.com/book-expert/podcast-studio/internal/tts/text"
	"github.com/book-expert/podcast-studio/internal/wizard"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// createOptions are the author inputs of a headless wizard run. Unset
// values keep what a restored draft holds.
type createOptions struct {
	scriptFile  string
	topic       string
	articles    []int
	tone        string
	duration    string
	voice       string
	title       string
	description string
	voicePrompt string
	imagePrompt string
	coverFile   string
	fresh       bool
	identity    core.Identity
}

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var opts createOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Run the podcast wizard from topic to published episode",
		Long: "Searches the topic, writes a script from the selected articles, voices it, " +
			"renders or uploads a cover and publishes the podcast. With --script the news " +
			"steps are skipped and the file is narrated as written. Progress is kept as a " +
			"draft, so a failed run resumes where it stopped.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer ctx.close()

			run, draftKey := runWizard, ctx.config.Draft.Key
			if opts.scriptFile != "" {
				run, draftKey = runManual, ctx.config.Draft.ManualKey
			}

			studio, err := openStudio(cmd.Context(), ctx, draftKey)
			if err != nil {
				return err
			}

			defer studio.Close()

			recordID, err := run(cmd.Context(), cmd.OutOrStdout(), studio, opts)
			if err != nil {
				saveErr := studio.Save()
				if saveErr == nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "Draft saved; run create again to resume.")
				}

				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Published podcast %s\n", recordID)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.scriptFile, "script", "s", "", "Narrate this script file instead of a news briefing")
	flags.StringVarP(&opts.topic, "topic", "t", "", "News topic to search")
	flags.IntSliceVar(&opts.articles, "articles", nil, "Articles to use, numbered from 1 (default all)")
	flags.StringVar(&opts.tone, "tone", "", "Script tone, e.g. casual or formal")
	flags.StringVar(&opts.duration, "duration", "", "Script length: short, medium or long")
	flags.StringVar(&opts.voice, "voice", "", "Narrator voice: alloy, echo, fable, onyx, nova or shimmer")
	flags.StringVar(&opts.title, "title", "", "Podcast title (defaults to the generated one)")
	flags.StringVar(&opts.description, "description", "", "Podcast description (defaults to the generated one)")
	flags.StringVar(&opts.voicePrompt, "voice-prompt", "", "Text to narrate instead of the script")
	flags.StringVar(&opts.imagePrompt, "image-prompt", "", "Prompt for the cover art")
	flags.StringVar(&opts.coverFile, "cover", "", "Cover image file to upload instead of generating one")
	flags.BoolVar(&opts.fresh, "fresh", false, "Discard any saved draft and start over")
	flags.StringVar(&opts.identity.Subject, "author-id", "", "Author subject id (required to publish)")
	flags.StringVar(&opts.identity.Email, "author-email", "", "Author email")
	flags.StringVar(&opts.identity.Name, "author-name", "", "Author display name")
	flags.StringVar(&opts.identity.PictureURL, "author-picture", "", "Author picture URL")

	for _, newsFlag := range []string{"topic", "articles", "tone", "duration", "voice-prompt"} {
		cmd.MarkFlagsMutuallyExclusive("script", newsFlag)
	}

	return cmd
}

// openStudio wires a Studio to the configured providers and stores, keeping
// its draft under draftKey.
func openStudio(runCtx context.Context, ctx *commandContext, draftKey string) (*wizard.Studio, error) {
	cfg := ctx.config
	log := ctx.logger()

	provider, err := ctx.provider()
	if err != nil {
		return nil, err
	}

	assets, err := ctx.assetStore()
	if err != nil {
		return nil, err
	}

	_, jetstreamContext, err := ctx.jetStream()
	if err != nil {
		return nil, err
	}

	notifier, err := notify.NewNatsNotifier(jetstreamContext, cfg.NATS.PublishedStream, cfg.NATS.PublishedSubject)
	if err != nil {
		return nil, err
	}

	documents, err := ctx.documents(runCtx)
	if err != nil {
		return nil, err
	}

	drafts, err := ctx.draftStore(runCtx)
	if err != nil {
		return nil, err
	}

	return wizard.NewStudio(runCtx, wizard.Dependencies{
		News:      provider,
		Scripts:   provider,
		Engine:    tts.NewEngine(provider, provider, log, tts.WithTextFilter(text.Clean)),
		Publisher: publisher.New(assets, log),
		Documents: documents,
		Events:    notifier,
		Drafts:    drafts,
	}, wizard.Options{
		DraftKey:     draftKey,
		Draft:        cfg.DraftOptions(),
		ArticleCount: cfg.News.ArticleCount,
		BitrateKbps:  cfg.TTS.BitrateKbps,
	}, log)
}

func runWizard(ctx context.Context, out io.Writer, studio *wizard.Studio, opts createOptions) (string, error) {
	err := resume(ctx, studio, opts.fresh, func() {
		fmt.Fprintf(out, "Resuming draft at step %s\n", studio.Session().Step)
	})
	if err != nil {
		return "", err
	}

	changed, err := chooseArticles(ctx, out, studio, opts)
	if err != nil {
		return "", err
	}

	err = writeScript(ctx, studio, opts, changed)
	if err != nil {
		return "", err
	}

	err = describe(studio, opts)
	if err != nil {
		return "", err
	}

	err = produceMedia(ctx, out, studio, opts.coverFile)
	if err != nil {
		return "", err
	}

	err = studio.Advance()
	if err != nil {
		return "", err
	}

	return studio.Publish(ctx, opts.identity)
}

// runManual narrates the script file as written. Title and description come
// from the author, since nothing is generated to fill them.
func runManual(ctx context.Context, out io.Writer, studio *wizard.Studio, opts createOptions) (string, error) {
	err := resume(ctx, studio, opts.fresh, func() { fmt.Fprintln(out, "Resuming draft") })
	if err != nil {
		return "", err
	}

	script, err := os.ReadFile(opts.scriptFile)
	if err != nil {
		return "", core.Wrap(core.ErrValidation, "read script", opts.scriptFile, err)
	}

	err = studio.EditVoicePrompt(string(script))
	if err != nil {
		return "", err
	}

	err = describe(studio, opts)
	if err != nil {
		return "", err
	}

	err = produceMedia(ctx, out, studio, opts.coverFile)
	if err != nil {
		return "", err
	}

	return studio.Publish(ctx, opts.identity)
}

// resume drops a restored draft when fresh is set and reports it otherwise.
func resume(ctx context.Context, studio *wizard.Studio, fresh bool, report func()) error {
	switch {
	case !studio.Restored():
		return nil
	case fresh:
		return studio.Discard(ctx)
	default:
		report()

		return nil
	}
}

// chooseArticles searches when no articles are held yet or the topic changed,
// then applies the requested selection. It reports whether the selection
// differs from the one the script was written for.
func chooseArticles(ctx context.Context, out io.Writer, studio *wizard.Studio, opts createOptions) (bool, error) {
	session := studio.Session()
	changed := false

	topic := strings.TrimSpace(opts.topic)
	if len(session.Articles) == 0 || (topic != "" && topic != session.Topic) {
		err := studio.SearchTopic(ctx, opts.topic)
		if err != nil {
			return false, err
		}

		session = studio.Session()
		if len(session.Articles) == 0 {
			return false, core.Wrap(core.ErrValidation, "search topic", "no articles found for "+session.Topic, nil)
		}

		changed = true
	}

	for index, article := range session.Articles {
		fmt.Fprintf(out, "%d. %s (%s)\n", index+1, article.Title, article.Source)
	}

	if len(opts.articles) == 0 {
		return changed, nil
	}

	err := studio.ClearArticles()
	if err != nil {
		return false, err
	}

	for _, number := range opts.articles {
		err = studio.ToggleArticle(number - 1)
		if err != nil {
			return false, err
		}
	}

	return true, nil
}

// writeScript generates the script unless a restored draft already holds one
// written for the same choices.
func writeScript(ctx context.Context, studio *wizard.Studio, opts createOptions, changed bool) error {
	if opts.tone != "" {
		err := studio.SetTone(opts.tone)
		if err != nil {
			return err
		}
	}

	if opts.duration != "" {
		err := studio.SetDuration(core.Duration(opts.duration))
		if err != nil {
			return err
		}
	}

	session := studio.Session()
	stale := changed || opts.tone != "" || opts.duration != ""
	if stale || session.Step <= wizard.StepArticles || session.Script == "" {
		err := studio.GenerateScript(ctx)
		if err != nil {
			return err
		}
	}

	for studio.Session().Step < wizard.StepMedia {
		err := studio.Advance()
		if err != nil {
			return err
		}
	}

	return nil
}

func describe(studio *wizard.Studio, opts createOptions) error {
	session := studio.Session()

	title, description := session.Title, session.Description
	if opts.title != "" {
		title = opts.title
	}

	if opts.description != "" {
		description = opts.description
	}

	err := studio.EditDetails(title, description)
	if err != nil {
		return err
	}

	if opts.voicePrompt != "" {
		err = studio.EditVoicePrompt(opts.voicePrompt)
		if err != nil {
			return err
		}
	}

	if opts.imagePrompt != "" {
		err = studio.EditImagePrompt(opts.imagePrompt)
		if err != nil {
			return err
		}
	}

	voice := opts.voice
	if voice == "" {
		voice = string(session.Voice)
	}

	if voice == "" {
		voice = string(core.VoiceAlloy)
	}

	return studio.SelectVoice(voice)
}

// produceMedia voices the script and prepares the cover concurrently.
func produceMedia(ctx context.Context, out io.Writer, studio *wizard.Studio, coverFile string) error {
	var cover []byte

	if coverFile != "" {
		data, err := os.ReadFile(coverFile)
		if err != nil {
			return core.Wrap(core.ErrValidation, "read cover", coverFile, err)
		}

		cover = data
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return studio.GenerateAudio(groupCtx)
	})

	group.Go(func() error {
		if cover != nil {
			return studio.UploadImage(groupCtx, cover, "")
		}

		return studio.GenerateImage(groupCtx)
	})

	err := group.Wait()
	if err != nil {
		return err
	}

	session := studio.Session()
	fmt.Fprintf(out, "Audio %s (%.0fs)\nCover %s\n", session.Audio.URL, session.AudioDuration, session.Image.URL)

	return nil
}
