package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"globetrotter/config"
)

var RootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "plan trips as ordered stops and share them",
	Long:  `globetrotter keeps trip itineraries consistent: ordered stops, scheduled activities, budgets, and public trips others can copy`,
}

var configPath string

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	RootCmd.AddCommand(serverCommand())
	RootCmd.AddCommand(migrateCommand())
	RootCmd.AddCommand(budgetCmd())
}

func newLogger(isDev bool) *slog.Logger {
	if isDev {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}
