package main

import (
	"fmt"
	"math"

	"github.com/book-expert/podcast-studio/internal/docstore"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var podcastHeader = table.Row{"ID", "Title", "Author", "Voice", "Length", "Views", "Published"}

func renderPodcasts(podcasts []docstore.Podcast) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(podcastHeader)

	for _, podcast := range podcasts {
		tw.AppendRow(table.Row{
			podcast.ID,
			podcast.Title,
			podcast.Author,
			string(podcast.Voice),
			formatLength(podcast.AudioDuration),
			podcast.Views,
			podcast.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}

	// Length and views.
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}

// formatLength renders seconds as m:ss.
func formatLength(seconds float64) string {
	total := int(math.Round(seconds))

	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
