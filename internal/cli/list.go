package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-convo/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		Run:   runList,
	}

	cmd.Flags().StringP("agent", "a", "", "Filter by agent")
	cmd.Flags().IntP("limit", "l", 20, "Max results (0 for all)")
	cmd.Flags().Bool("ids-only", false, "Only output conversation ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	agent, _ := cmd.Flags().GetString("agent")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	a := mustOpen(cmd)
	defer a.Close()

	convs, err := a.store.ListConversations(cmd.Context(), store.ListParams{
		AgentName: agent,
		Limit:     limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	out := cmd.OutOrStdout()
	switch {
	case idsOnly:
		for _, c := range convs {
			fmt.Fprintln(out, c.ID)
		}
	case textOutput():
		for _, c := range convs {
			writeSummary(out, c)
		}
	default:
		printJSON(convs)
	}
}
