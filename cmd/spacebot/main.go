// Command spacebot is a synthetic participant for a space server.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "spacebot",
	Short: "Synthetic participant for a space server",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if lvl, err := zerolog.ParseLevel(flagLogLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "http://localhost:8080", "space server base URL")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log_level", "info", "zerolog level")
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("spacebot failed")
		os.Exit(1)
	}
}
