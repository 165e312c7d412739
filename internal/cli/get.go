package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a memory",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	owner, tier := caller()
	a := openApp()
	defer a.Close()

	m, err := a.Client.GetMemory(cmd.Context(), owner, tier, args[0])
	if err != nil {
		exitErr("get", err)
	}

	printJSON(m)
}
