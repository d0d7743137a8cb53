/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatwire/pkg/restclient"
	"chatwire/pkg/ui/chat"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	chatURL      string
	chatPath     string
	chatSenderID string
	chatOnce     string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to a running gateway through its REST channel",
	Long:  "Opens an interactive console against a gateway's REST channel, or sends a single message with --once.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := restclient.New(chatURL, restclient.WithChannelPath(chatPath))
		senderID := resolveSenderID(chatSenderID)

		if strings.TrimSpace(chatOnce) != "" {
			return sendOnce(runCtx, client, senderID, chatOnce, cmd.OutOrStdout())
		}

		if err := client.Health(runCtx); err != nil {
			return fmt.Errorf("gateway at %s is not reachable: %w", chatURL, err)
		}

		return chat.RunInteractive(runCtx, client, chat.RuntimeInfo{
			URL:      chatURL,
			SenderID: senderID,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatURL, "url", "http://localhost:5005", "gateway base URL")
	chatCmd.Flags().StringVar(&chatPath, "path", "/webhooks/rest", "REST channel mount path")
	chatCmd.Flags().StringVar(&chatSenderID, "sender", "", "sender id (random when empty)")
	chatCmd.Flags().StringVar(&chatOnce, "once", "", "send one message, print the reply, and exit")
}

func sendOnce(ctx context.Context, client *restclient.Client, senderID, text string, out io.Writer) error {
	fragments, err := client.Send(ctx, senderID, text)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return chat.PrintFragments(out, fragments)
}

func resolveSenderID(value string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}

	return uuid.NewString()
}
