package main

import (
	"fmt"
	"os"
	"path/filepath"

	"bananagen/internal/config"
	"bananagen/internal/core/generate"
	"bananagen/internal/core/run"
	"bananagen/internal/logger"
	"bananagen/internal/notify"
	"bananagen/internal/platform/gemini"
	"bananagen/internal/retry"
	"bananagen/internal/state"

	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	var pauseOnError bool
	var stopAfter int
	var veryVerbose bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate catalog angles for every pending SKU",
		RunE: func(cmd *cobra.Command, args []string) error {
			if veryVerbose {
				logger.ForceDebug()
			}
			cfg := config.Load()
			if err := cfg.ValidateForRun(); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.OutputRoot, 0o755); err != nil {
				return fmt.Errorf("create output root: %w", err)
			}
			if f, err := os.OpenFile(filepath.Join(cfg.OutputRoot, cfg.RunLogFile),
				os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				logger.ConfigureFile(f)
				defer f.Close()
			}

			log := logger.New("main")
			ctx := cmd.Context()

			store, err := state.Open(cfg.StateFile, cfg.ErrorFile)
			if err != nil {
				return err
			}
			defer store.Close()

			remote, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.Model, cfg.AspectRatio)
			if err != nil {
				return err
			}

			notifier := notify.NewService(notify.Options{
				Endpoint: cfg.ResolveNtfyURL(),
				Username: cfg.NtfyUsername,
				Password: cfg.NtfyPassword,
			})

			worker := generate.NewService(remote, store, notifier, generate.Config{
				ReferenceRoot: cfg.ReferenceRoot,
				OutputRoot:    cfg.OutputRoot,
				MaxRefImages:  cfg.MaxRefImages,
				AcceptedExts:  cfg.AcceptedExts,
				UploadPace:    cfg.UploadPace,
				Retry:         retryPolicy(cfg),
				PauseOnError:  pauseOnError,
			})

			controller := run.NewController(store, worker, notifier, run.Options{
				CatalogFile:  cfg.CatalogFile,
				StopAfter:    stopAfter,
				PauseOnError: pauseOnError,
			})

			summary, err := controller.Run(ctx)
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("run finished with %d failed SKU(s)", summary.Failed)
			}
			log.LogInfof("run %s finished cleanly", summary.RunID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&pauseOnError, "pause-on-error", false, "Stop the whole run on the first error")
	cmd.Flags().IntVar(&stopAfter, "stop-after", 0, "Max SKUs to process this run (0 means all)")
	cmd.Flags().BoolVar(&veryVerbose, "very-verbose", false, "Force DEBUG logging for this run")
	return cmd
}

func retryPolicy(cfg config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
}
