package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/peermatch/internal/console"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the bot from the terminal as the given person",
	Run: func(cmd *cobra.Command, _ []string) {
		chat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().Int64P("person-id", "p", 0, "person identifier to act as")
	chatCmd.Flags().StringP("username", "u", "", "display name shown to matched people")
	chatCmd.MarkFlagRequired("person-id")
}

func chat(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, logger := setup()

	personID, _ := cmd.Flags().GetInt64("person-id")
	username, _ := cmd.Flags().GetString("username")

	logger.Info("starting the peermatch chat", zap.String("version", version), zap.Int64("person_id", personID))

	a, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the application", zap.Error(err))
	}
	defer a.Close()

	a.serveMetrics(ctx)

	c := console.New(a.handler(), console.PromptTerminal{}, os.Stdout, personID, username, logger)
	if err := c.Run(ctx); err != nil {
		logger.Error("chat stopped", zap.Error(err))
		return
	}
	logger.Info("bye")
}
