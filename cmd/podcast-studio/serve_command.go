package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/podcast-studio/internal/publisher"
	"github.com/book-expert/podcast-studio/internal/tts"
	"github.com/book-expert/podcast-studio/internal/tts/text"
	"github.com/book-expert/podcast-studio/internal/worker"
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve synthesis requests over NATS until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer ctx.close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := ctx.config
			log := ctx.logger()

			natsConnection, _, err := ctx.jetStream()
			if err != nil {
				return err
			}

			store, err := ctx.assetStore()
			if err != nil {
				return err
			}

			provider, err := ctx.provider()
			if err != nil {
				return err
			}

			engine := tts.NewEngine(provider, provider, log, tts.WithTextFilter(text.Clean))
			synthesisWorker := worker.NewNatsWorker(
				natsConnection,
				cfg.NATS.SynthesizeSubject,
				store,
				engine,
				publisher.New(store, log),
				cfg.TTS.BitrateKbps,
				log,
			)

			log.System("podcast-studio worker initialized. Listening for jobs on subject: %s",
				cfg.NATS.SynthesizeSubject)

			return synthesisWorker.Run(runCtx)
		},
	}
}
