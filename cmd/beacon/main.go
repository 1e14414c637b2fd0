// Package main запускает mDNS маяк, который анонсирует шлюз в сети объекта
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"edge-sentiment/internal/config"
	"edge-sentiment/internal/discovery"
	"edge-sentiment/internal/telemetry"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:           "sentiment-beacon",
		Short:         "Advertise the edge gateway on the local network via mDNS",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger, err := telemetry.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("starting mDNS advertiser")
			beacon := discovery.NewBeacon(discovery.NewAdvertisement(cfg), cfg.Beacon.Interval, logger)
			return beacon.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
