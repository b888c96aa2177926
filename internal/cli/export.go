package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export conversations as JSON",
		Long:  "Export every conversation with its full message history. Filter by agent with -a.",
		Run:   runExport,
	}

	cmd.Flags().StringP("agent", "a", "", "Filter by agent")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	agent, _ := cmd.Flags().GetString("agent")

	a := mustOpen(cmd)
	defer a.Close()

	convs, err := a.store.ExportAll(cmd.Context(), agent)
	if err != nil {
		exitErr("export", err)
	}

	printJSON(convs)
}
