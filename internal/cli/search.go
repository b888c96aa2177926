package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-convo/internal/reply"
	"github.com/rcliao/agent-convo/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search message content",
		Long:  "Find conversations with a message containing the query (case-insensitive).",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().StringP("agent", "a", "", "Filter by agent")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	agent, _ := cmd.Flags().GetString("agent")
	limit, _ := cmd.Flags().GetInt("limit")

	a := mustOpen(cmd)
	defer a.Close()

	results, err := a.store.Search(cmd.Context(), store.SearchParams{
		Query:     strings.Join(args, " "),
		AgentName: agent,
		Limit:     limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	if !textOutput() {
		printJSON(results)
		return
	}
	out := cmd.OutOrStdout()
	for _, r := range results {
		match := ""
		if r.MatchMessage != nil {
			match = reply.Truncate(r.MatchMessage.Content, previewLen)
		}
		fmt.Fprintf(out, "%s  %-17s  %s\n", r.ID, r.AgentName, match)
	}
}
