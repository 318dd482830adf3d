package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/book-expert/podcast-studio/internal/draft"
	"github.com/book-expert/podcast-studio/internal/wizard"
	"github.com/spf13/cobra"
)

func newDraftCommand(ctx *commandContext) *cobra.Command {
	var (
		key    string
		manual bool
	)

	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Inspect or discard the saved wizard draft",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&key, "key", "", "Draft key (defaults to draft.key from the configuration)")
	cmd.PersistentFlags().BoolVar(&manual, "manual", false, "Use the draft of create --script runs")
	cmd.MarkFlagsMutuallyExclusive("key", "manual")

	draftKey := func() string {
		switch {
		case strings.TrimSpace(key) != "":
			return key
		case manual:
			return ctx.config.Draft.ManualKey
		default:
			return ctx.config.Draft.Key
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved draft as it would be restored",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer ctx.close()

			store, err := ctx.draftStore(cmd.Context())
			if err != nil {
				return err
			}

			var snapshot wizard.Snapshot
			if !draft.Read(cmd.Context(), store, draftKey(), &snapshot) {
				fmt.Fprintf(cmd.OutOrStdout(), "No draft saved under %s\n", draftKey())

				return nil
			}

			printSession(cmd.OutOrStdout(), wizard.ApplySnapshot(snapshot))

			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "discard",
		Short: "Delete the saved draft",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer ctx.close()

			store, err := ctx.draftStore(cmd.Context())
			if err != nil {
				return err
			}

			err = store.Delete(cmd.Context(), draftKey())
			if err != nil && !errors.Is(err, core.ErrKeyNotFound) {
				return fmt.Errorf("discard draft %s: %w", draftKey(), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Discarded draft %s\n", draftKey())

			return nil
		},
	})

	return cmd
}

func printSession(out io.Writer, session wizard.Session) {
	fmt.Fprintf(out, "Step:        %s\n", session.Step)
	fmt.Fprintf(out, "Topic:       %s\n", session.Topic)
	fmt.Fprintf(out, "Articles:    %d (%d selected)\n", len(session.Articles), len(session.Selected))

	for _, article := range session.SelectedArticles() {
		fmt.Fprintf(out, "  - %s (%s)\n", article.Title, article.Source)
	}

	fmt.Fprintf(out, "Tone:        %s\n", session.Tone)
	fmt.Fprintf(out, "Duration:    %s\n", session.Duration)
	fmt.Fprintf(out, "Voice:       %s\n", session.Voice)
	fmt.Fprintf(out, "Title:       %s\n", session.Title)
	fmt.Fprintf(out, "Description: %s\n", session.Description)
	fmt.Fprintf(out, "Script:      %d chars\n", len([]rune(session.Script)))
	fmt.Fprintf(out, "Narration:   %d chars\n", len([]rune(session.SpeechText())))
}
