package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/acebase-go/acebase/internal/config"
	"github.com/acebase-go/acebase/internal/eventbus"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the database open and, if nats_url is configured, run the cluster bridge (spec §5)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if bus := db.Bus(); bus != nil && cfg.NATSURL != "" {
			nc, err := nats.Connect(cfg.NATSURL)
			if err != nil {
				return fmt.Errorf("connect nats: %w", err)
			}
			defer nc.Close()

			js, err := nc.JetStream()
			if err != nil {
				return fmt.Errorf("jetstream context: %w", err)
			}
			if err := eventbus.EnsureStream(js); err != nil {
				return err
			}
			bus.SetJetStream(js)
			log.Printf("acebase: cluster bridge publishing to %s", cfg.NATSURL)
		}

		log.Printf("acebase: serving (backend=%s)", cfg.Backend)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
