package main

import (
	"fmt"
	"os"

	"Healthbite/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	promptsFile string
	provider    string

	cfg    config.Config
	logger zerolog.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "healthbite",
	Short: "Healthbite - conversational meal plans for chronic conditions",
	Long: `Healthbite collects a short intake form, talks with the patient through an
onboarding assistant, and hands off to a nutrition assistant that writes a
one-day meal plan with a nutrition table and calorie chart.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if promptsFile != "" {
			if err := config.LoadPrompts(promptsFile, &cfg.Conversation); err != nil {
				return err
			}
		}
		if provider != "" {
			cfg.LLM.Provider = provider
		}
		logger = config.NewLogger(cfg.AppEnv, nil)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&promptsFile, "prompts", "", "YAML file overriding assistant instructions (or set PROMPTS_FILE)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "Completion provider: rest or genai (or set LLM_PROVIDER)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
