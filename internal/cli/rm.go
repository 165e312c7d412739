package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id> [id...]",
		Short: "Delete memories",
		Long:  "Delete one or more memories. With several ids, prints a per-id result and exits non-zero if any failed.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	owner, tier := caller()
	a := openApp()
	defer a.Close()

	if len(args) == 1 {
		if err := a.Client.DeleteMemory(cmd.Context(), owner, tier, args[0]); err != nil {
			exitErr("rm", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q}`+"\n", args[0])
		return
	}

	results := a.Client.BulkDelete(cmd.Context(), owner, tier, args)
	printJSON(results)

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	if failed > 0 {
		a.Close()
		exitErr("rm", fmt.Errorf("%d of %d deletions failed", failed, len(results)))
	}
}
