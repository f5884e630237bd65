package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"wondertales/internal/cli/scheme/colours"
	"wondertales/internal/config"
	"wondertales/internal/story/nest"
)

func main() {
	var (
		current    atomic.Pointer[nest.WonderTales]
		configFile string
		logLevel   string
	)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		if app := current.Swap(nil); app != nil {
			app.Cancel()
			app.Close()
		}
		fmt.Println("\n" + colours.Warning.Sprint("👋 Goodbye! Sweet dreams! 🌙"))
		os.Exit(0)
	}()

	rootCmd := &cobra.Command{
		Use:   "wondertales",
		Short: "✨ Interactive stories that grow with every choice",
		Long: `
┌─────────────────────────────────────┐
│  📚 Welcome to WonderTales! ✨      │
│  Stories you shape, page by page    │
│  Read aloud for kids 👶🎧           │
└─────────────────────────────────────┘

WonderTales writes a brand new illustrated, narrated story for your child,
one page at a time. At the end of every page you choose what happens next! 🌙
		`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(configFile); err != nil {
				return err
			}
			settings := config.Load()
			if logLevel != "" {
				settings.LogLevel = logLevel
			}
			settings.ApplyLogLevel()

			app, err := nest.NewWonderTales(settings)
			if err != nil {
				return err
			}
			current.Store(app)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app := current.Swap(nil); app != nil {
				app.Close()
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			current.Load().Interactive(cmd, args)
		},
	}

	// Start command
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "🚀 Begin a brand new adventure",
		Long:  "Start a new story for the hero described by the flags; any saved story is replaced",
		Run: func(cmd *cobra.Command, args []string) {
			current.Load().StartStory(cmd, args)
		},
	}

	// Continue command
	continueCmd := &cobra.Command{
		Use:   "continue",
		Short: "📖 Pick up where you left off",
		Long:  "Resume the saved story at its last page without writing anything new",
		Run: func(cmd *cobra.Command, args []string) {
			current.Load().ContinueStory(cmd, args)
		},
	}

	// Reset command
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "🧹 Forget the current story",
		Long:  "Clear the session and erase the saved story",
		Run: func(cmd *cobra.Command, args []string) {
			current.Load().ResetStory(cmd, args)
		},
	}

	// Status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "📊 Show the saved story",
		Long:  "Display the hero, session status and the pages written so far",
		Run: func(cmd *cobra.Command, args []string) {
			current.Load().ShowStatus(cmd, args)
		},
	}

	// Voices command
	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "🎤 List storytelling voices",
		Long:  "Show the available speech engines and the voices of the configured one",
		Run: func(cmd *cobra.Command, args []string) {
			current.Load().ListVoices(cmd, args)
		},
	}

	// Add flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default $HOME/.wondertales/wondertales.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	nest.AddProfileFlags(rootCmd)
	nest.AddProfileFlags(startCmd)
	voicesCmd.Flags().Bool("clear-cache", false, "Remove cached speech files")

	rootCmd.AddCommand(startCmd, continueCmd, resetCmd, statusCmd, voicesCmd)

	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Debug("Command failed")
		colours.Error.Printf("❌ Error: %v\n", err)
		os.Exit(1)
	}
}
