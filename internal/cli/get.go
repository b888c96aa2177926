package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a conversation",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	a := mustOpen(cmd)
	defer a.Close()

	conv, err := a.store.GetConversation(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}

	if textOutput() {
		writeConversation(cmd.OutOrStdout(), conv)
		return
	}
	printJSON(conv)
}
