package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-convo/internal/model"
	"github.com/rcliao/agent-convo/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "send <id> [content]",
		Short: "Append a message to a conversation",
		Long: `Append a message to a conversation. Content comes from the arguments or stdin.
User messages wait for the agent reply (up to --wait) before printing.`,
		Args: cobra.MinimumNArgs(1),
		Run:  runSend,
	}

	cmd.Flags().StringP("role", "r", string(model.RoleUser), "Message role: user, assistant or system")
	cmd.Flags().StringSliceP("meta", "m", nil, "Metadata as key=value (repeatable)")
	cmd.Flags().Duration("wait", 10*time.Second, "How long to wait for the reply (0 to return immediately)")

	RootCmd.AddCommand(cmd)
}

func runSend(cmd *cobra.Command, args []string) {
	role, _ := cmd.Flags().GetString("role")
	metaPairs, _ := cmd.Flags().GetStringSlice("meta")
	wait, _ := cmd.Flags().GetDuration("wait")

	var content string
	if len(args) > 1 {
		content = strings.Join(args[1:], " ")
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		content = strings.TrimRight(string(data), "\n")
	}

	meta, err := parseMeta(metaPairs)
	if err != nil {
		exitErr("send", err)
	}

	a := mustOpen(cmd)
	defer a.Close()

	conv, err := a.store.AddMessage(cmd.Context(), store.ByID(args[0]), store.MessageParams{
		Role:     model.Role(role),
		Content:  content,
		Metadata: meta,
	})
	if err != nil {
		exitErr("send", err)
	}

	if model.Role(role) == model.RoleUser && wait > 0 {
		if msgID := lastUserMessage(conv); msgID != "" {
			conv = awaitReply(a, conv, msgID, wait)
		}
	}

	if textOutput() {
		writeConversation(cmd.OutOrStdout(), conv)
		return
	}
	printJSON(conv)
}

func lastUserMessage(c model.Conversation) string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == model.RoleUser {
			return c.Messages[i].ID
		}
	}
	return ""
}

func hasReply(c model.Conversation, msgID string) bool {
	for _, m := range c.Messages {
		if m.Role == model.RoleAssistant && m.Metadata["in_reply_to"] == msgID {
			return true
		}
	}
	return false
}

// awaitReply blocks until the reply to msgID shows up or the timeout
// passes, and returns the latest snapshot seen.
func awaitReply(a *app, c model.Conversation, msgID string, timeout time.Duration) model.Conversation {
	if hasReply(c, msgID) {
		return c
	}

	done := make(chan model.Conversation, 1)
	unsub := a.store.Subscribe(c.ID, func(snap model.Conversation) {
		if !hasReply(snap, msgID) {
			return
		}
		select {
		case done <- snap:
		default:
		}
	})
	defer unsub()

	select {
	case snap := <-done:
		return snap
	case <-time.After(timeout):
		a.log.Warn("reply_timeout", "conversation", c.ID, "trigger", msgID, "wait", timeout)
		fmt.Fprintf(os.Stderr, "warning: no reply within %s\n", timeout)
		return c
	}
}
