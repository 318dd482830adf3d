package main

import (
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/book-expert/podcast-studio/internal/openai"
	"github.com/book-expert/podcast-studio/internal/tts/text"
	"github.com/spf13/cobra"
)

func newSegmentCommand() *cobra.Command {
	var (
		file   string
		maxLen int
		clean  bool
	)

	cmd := &cobra.Command{
		Use:         "segment",
		Short:       "Show how a script is split into speech requests",
		Annotations: map[string]string{annotationSkipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			script, err := readScript(cmd, file)
			if err != nil {
				return err
			}

			if clean {
				script = text.Clean(script)
			}

			chunks := text.Segment(script, maxLen)
			out := cmd.OutOrStdout()

			for index, chunk := range chunks {
				fmt.Fprintf(out, "[%d/%d] (%d chars) %s\n",
					index+1, len(chunks), utf8.RuneCountInString(chunk), chunk)
			}

			if len(chunks) == 0 {
				fmt.Fprintln(out, "Script is empty")
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Script file (reads stdin when omitted)")
	cmd.Flags().IntVar(&maxLen, "max", openai.DefaultMaxInputChars, "Maximum characters per chunk")
	cmd.Flags().BoolVar(&clean, "clean", false, "Strip markup the way synthesis does before splitting")

	return cmd
}

func readScript(cmd *cobra.Command, file string) (string, error) {
	if file == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read script from stdin: %w", err)
		}

		return string(data), nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read script file %s: %w", file, err)
	}

	return string(data), nil
}
