// Package main is the entry point for the review service.
//
// The binary is a cobra command tree:
//
//	reviews serve              run the HTTP server
//	reviews migrate up|down|version
//	reviews snippet <portal>   print the embed code for a portal
//	reviews token <user>       issue a dashboard API token
//
// Configuration is read by internal/config (defaults < reviews.yaml < env,
// with .env loaded first).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bluefermion/reviews/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfg     *config.Config
	rootCmd = &cobra.Command{
		Use:   "reviews",
		Short: "Review collection portals and the embeddable review widget",
		Long: `reviews serves hosted review forms, the embeddable widget script and the
submission endpoint the widget posts to, plus a small dashboard API for
portal owners.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion":
				return nil
			}
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return nil
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
