package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zfogg/sidechain/chat/pkg/config"
	"github.com/zfogg/sidechain/chat/pkg/logger"
	"github.com/zfogg/sidechain/chat/pkg/output"
	"github.com/zfogg/sidechain/chat/pkg/service"
)

var (
	verbose    bool
	configPath string
	outputFmt  string
)

var rootCmd = &cobra.Command{
	Use:   "sidechain-chat",
	Short: "Sidechain direct messaging from the terminal",
	Long: `sidechain-chat reads and sends Sidechain direct messages. It keeps a
live session over the real-time feed with typing and presence, or runs
single commands against the messaging API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath); err != nil {
			return fmt.Errorf("error initializing config: %w", err)
		}

		logger.Init(verbose)

		if !output.ValidateOutputFormat(outputFmt) {
			return fmt.Errorf("invalid output format %q: use text, json or table", outputFmt)
		}
		config.SetString("output.format", outputFmt)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, errorText(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/sidechain/chat/config.toml)")
	rootCmd.PersistentFlags().StringVar(&outputFmt, "output", "text", "Output format: text, json, table")
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(inboxCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(threadCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(presenceCmd)
	rootCmd.AddCommand(versionCmd)
}

// withService builds a chat service for one command and closes it afterwards
func withService(fn func(svc *service.ChatService) error) error {
	svc, err := service.NewChatService()
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}
