package main

import (
	"context"
	"errors"
	"fmt"

	"bananagen/internal/config"
	"bananagen/internal/core/bgclean"
	"bananagen/internal/logger"
	"bananagen/internal/notify"
	"bananagen/internal/platform/gemini"
	"bananagen/internal/state"

	"github.com/spf13/cobra"
)

func newBgcleanCommand() *cobra.Command {
	var workers int
	var dryRun bool
	var testMode bool
	var veryVerbose bool

	cmd := &cobra.Command{
		Use:   "bgclean",
		Short: "Re-render saved product PNGs onto a pure white background",
		RunE: func(cmd *cobra.Command, args []string) error {
			if veryVerbose {
				logger.ForceDebug()
			}
			cfg := config.Load()
			if err := cfg.ValidateForRun(); err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := state.Open(cfg.StateFile, cfg.ErrorFile)
			if err != nil {
				return err
			}
			defer store.Close()

			editor, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.Model, cfg.AspectRatio)
			if err != nil {
				return err
			}

			notifier := notify.NewService(notify.Options{
				Endpoint: cfg.ResolveNtfyURL(),
				Username: cfg.NtfyUsername,
				Password: cfg.NtfyPassword,
			})

			if workers <= 0 {
				workers = cfg.BgcleanWorkers
			}
			testLimit := 0
			if testMode {
				testLimit = 5
			}

			svc := bgclean.NewService(editor, store, notifier, bgclean.Config{
				Root:      cfg.BgcleanRoot,
				Prompt:    cfg.BgcleanPrompt,
				Workers:   workers,
				Retry:     retryPolicy(cfg),
				DryRun:    dryRun,
				TestLimit: testLimit,
			})

			result, err := svc.Run(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.New("main").LogInfo("Paused by user; exiting gracefully.")
					return nil
				}
				return err
			}
			if result.Failed > 0 {
				return fmt.Errorf("bgclean finished with %d failed image(s)", result.Failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size (0 uses BGCLEAN_WORKERS)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the work without calling the API")
	cmd.Flags().BoolVar(&testMode, "test", false, "Only process the first 5 subfolders")
	cmd.Flags().BoolVar(&veryVerbose, "very-verbose", false, "Force DEBUG logging for this run")
	return cmd
}
