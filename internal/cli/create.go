package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-convo/internal/reply"
	"github.com/rcliao/agent-convo/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a conversation",
		Long:  "Start a conversation with an agent persona. Unknown agents fall back to the default persona.",
		Run:   runCreate,
	}

	cmd.Flags().StringP("agent", "a", "", "Agent persona (see `agents`)")
	cmd.Flags().StringSliceP("meta", "m", nil, "Metadata as key=value (repeatable)")

	RootCmd.AddCommand(cmd)
}

func runCreate(cmd *cobra.Command, args []string) {
	agent, _ := cmd.Flags().GetString("agent")
	metaPairs, _ := cmd.Flags().GetStringSlice("meta")

	meta, err := parseMeta(metaPairs)
	if err != nil {
		exitErr("create", err)
	}

	a := mustOpen(cmd)
	defer a.Close()

	if agent != "" && !reply.Known(agent) {
		a.log.Warn("unknown_agent", "agent", agent, "fallback", reply.DefaultAgent)
		fmt.Fprintf(os.Stderr, "warning: unknown agent %q, using %s\n", agent, reply.DefaultAgent)
	}

	conv, err := a.store.CreateConversation(cmd.Context(), store.CreateParams{
		AgentName: agent,
		Metadata:  meta,
	})
	if err != nil {
		exitErr("create", err)
	}

	if textOutput() {
		writeConversation(cmd.OutOrStdout(), conv)
		return
	}
	printJSON(conv)
}

func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q (use key=value)", p)
		}
		meta[k] = strings.TrimSpace(v)
	}
	return meta, nil
}
