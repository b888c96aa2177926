package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-convo/internal/reply"
)

func init() {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List agent personas",
		Run:   runAgents,
	}

	RootCmd.AddCommand(cmd)
}

func runAgents(cmd *cobra.Command, args []string) {
	if !textOutput() {
		printJSON(map[string]interface{}{
			"agents":  reply.All(),
			"default": reply.DefaultAgent,
		})
		return
	}
	out := cmd.OutOrStdout()
	for _, p := range reply.All() {
		marker := " "
		if p.Name == reply.DefaultAgent {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-17s %s\n", marker, p.Name, p.Title)
	}
}
