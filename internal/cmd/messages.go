package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zfogg/sidechain/chat/pkg/prompter"
	"github.com/zfogg/sidechain/chat/pkg/render"
	"github.com/zfogg/sidechain/chat/pkg/service"
)

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> [text...]",
	Short: "Send a message",
	Long:  "Send a message to a conversation. Without text, the message is read from stdin.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[1:], " ")
		if text == "" {
			var err error
			p := prompter.New(cmd.InOrStdin(), cmd.OutOrStdout())
			if text, err = p.Required("Message: "); err != nil {
				return err
			}
		}
		return withService(func(svc *service.ChatService) error {
			return svc.Send(cmd.Context(), args[0], text)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id> <message-id>",
	Short: "Delete one of your messages",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *service.ChatService) error {
			return svc.Delete(cmd.Context(), args[0], args[1])
		})
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <text...>",
	Short: "Print the markup a message renders to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := render.FromConfig()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), r.Render(strings.Join(args, " "), render.Options{PreserveLineBreaks: true}))
		return nil
	},
}
