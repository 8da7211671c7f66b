package cmd

import (
	"github.com/spf13/cobra"
	"github.com/zfogg/sidechain/chat/pkg/service"
)

var threadMarkup bool

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *service.ChatService) error {
			return svc.Inbox(cmd.Context())
		})
	},
}

var startCmd = &cobra.Command{
	Use:   "start <user-id>",
	Short: "Open or create a conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *service.ChatService) error {
			return svc.Start(cmd.Context(), args[0])
		})
	},
}

var threadCmd = &cobra.Command{
	Use:   "thread <conversation-id>",
	Short: "Show the latest messages of a conversation and mark it read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *service.ChatService) error {
			return svc.Thread(cmd.Context(), args[0], threadMarkup)
		})
	},
}

var readCmd = &cobra.Command{
	Use:   "read <conversation-id>",
	Short: "Mark a conversation read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *service.ChatService) error {
			return svc.MarkRead(cmd.Context(), args[0])
		})
	},
}

func init() {
	threadCmd.Flags().BoolVar(&threadMarkup, "markup", false, "Print messages as rendered markup")
}
