package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/sidechain/chat/pkg/config"
	"github.com/zfogg/sidechain/chat/pkg/prompter"
	"github.com/zfogg/sidechain/chat/pkg/service"
)

var (
	metricsAddr  string
	presenceWait time.Duration
)

var chatCmd = &cobra.Command{
	Use:   "chat [conversation-id]",
	Short: "Start a live chat session",
	Long: `Start a live session on the real-time feed. Incoming messages, typing
and presence are printed as they arrive; each line you type is sent to the
open conversation. Type /quit to leave.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := metricsAddr
		if addr == "" {
			addr = config.GetString("metrics.addr")
		}
		if addr != "" {
			if _, err := service.ServeMetrics(ctx, addr); err != nil {
				return err
			}
		}

		conversationID := ""
		if len(args) > 0 {
			conversationID = args[0]
		}
		return withService(func(svc *service.ChatService) error {
			return svc.Chat(ctx, conversationID, prompter.New(cmd.InOrStdin(), cmd.OutOrStdout()))
		})
	},
}

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "Show which contacts are online",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), presenceWait+10*time.Second)
		defer cancel()
		return withService(func(svc *service.ChatService) error {
			return svc.Presence(ctx, presenceWait)
		})
	},
}

func init() {
	chatCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address, e.g. :9090")
	presenceCmd.Flags().DurationVar(&presenceWait, "wait", 5*time.Second, "How long to wait for the presence snapshot")
}
