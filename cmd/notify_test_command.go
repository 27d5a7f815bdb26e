package main

import (
	"fmt"

	"bananagen/internal/config"
	"bananagen/internal/notify"

	"github.com/spf13/cobra"
)

func newNotifyTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test notification to the configured ntfy endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			endpoint := cfg.ResolveNtfyURL()
			if endpoint == "" {
				return fmt.Errorf("ntfy is not configured (set NTFY_URL or NTFY_TOPIC)")
			}
			svc := notify.NewService(notify.Options{
				Endpoint: endpoint,
				Username: cfg.NtfyUsername,
				Password: cfg.NtfyPassword,
			})
			if err := svc.TestNotification(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("Test notification sent to %s\n", endpoint)
			return nil
		},
	}
}
