package main

import (
	"fmt"
	"io"

	"github.com/book-expert/podcast-studio/internal/docstore"
	"github.com/spf13/cobra"
)

func newPodcastsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "podcasts",
		Short: "Browse published podcasts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newPodcastsListCommand(ctx))
	cmd.AddCommand(newPodcastsTrendingCommand(ctx))
	cmd.AddCommand(newPodcastsShowCommand(ctx))

	return cmd
}

func newPodcastsListCommand(ctx *commandContext) *cobra.Command {
	var search, author string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List podcasts, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer ctx.close()

			store, err := ctx.documents(cmd.Context())
			if err != nil {
				return err
			}

			var podcasts []docstore.Podcast
			if author != "" {
				podcasts, err = store.ListByAuthor(cmd.Context(), author)
			} else {
				podcasts, err = store.SearchByTitle(cmd.Context(), search)
			}

			if err != nil {
				return err
			}

			printPodcasts(cmd.OutOrStdout(), podcasts)

			return nil
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "Only titles containing this text")
	cmd.Flags().StringVar(&author, "author", "", "Only podcasts by this author id")

	return cmd
}

func newPodcastsTrendingCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "trending",
		Short: "List the most played podcasts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer ctx.close()

			store, err := ctx.documents(cmd.Context())
			if err != nil {
				return err
			}

			podcasts, err := store.Trending(cmd.Context(), limit)
			if err != nil {
				return err
			}

			printPodcasts(cmd.OutOrStdout(), podcasts)

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "How many podcasts to list (0 for all)")

	return cmd
}

func newPodcastsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <podcast-id>",
		Short: "Show one podcast and count a play",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			store, err := ctx.documents(cmd.Context())
			if err != nil {
				return err
			}

			err = store.IncrementViews(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			podcast, err := store.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n%s\n\n", podcast.Title, podcast.Description)
			fmt.Fprintf(out, "By:     %s\n", podcast.Author)
			fmt.Fprintf(out, "Voice:  %s\n", podcast.Voice)
			fmt.Fprintf(out, "Length: %s\n", formatLength(podcast.AudioDuration))
			fmt.Fprintf(out, "Views:  %d\n", podcast.Views)
			fmt.Fprintf(out, "Audio:  %s\n", podcast.AudioURL)
			fmt.Fprintf(out, "Cover:  %s\n", podcast.ImageURL)

			similar, err := store.ListByVoice(cmd.Context(), podcast.ID)
			if err != nil {
				return err
			}

			if len(similar) > 0 {
				fmt.Fprintf(out, "\nAlso narrated by %s:\n", podcast.Voice)
				printPodcasts(out, similar)
			}

			return nil
		},
	}
}

func printPodcasts(out io.Writer, podcasts []docstore.Podcast) {
	if len(podcasts) == 0 {
		fmt.Fprintln(out, "No podcasts found")

		return
	}

	fmt.Fprintln(out, renderPodcasts(podcasts))
}
