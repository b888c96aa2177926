package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	a := mustOpen(cmd)
	defer a.Close()

	stats, err := a.store.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	if !textOutput() {
		printJSON(stats)
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "backend:       %s\n", a.cfg.Storage.Backend)
	if a.cfg.Storage.Path != "" {
		fmt.Fprintf(out, "path:          %s\n", a.cfg.Storage.Path)
	}
	fmt.Fprintf(out, "conversations: %s\n", humanize.Comma(int64(stats.TotalConversations)))
	fmt.Fprintf(out, "messages:      %s\n", humanize.Comma(int64(stats.TotalMessages)))
	fmt.Fprintf(out, "pending:       %d\n", stats.PendingReplies)
	for status, n := range stats.ByStatus {
		fmt.Fprintf(out, "  %-11s %d\n", status, n)
	}
	for _, ag := range stats.Agents {
		fmt.Fprintf(out, "%-17s %d conversations, %d messages\n", ag.Agent, ag.Conversations, ag.Messages)
	}
}
