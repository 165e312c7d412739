package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every memory the owner has in one scope",
		Run:   runClear,
	}

	cmd.Flags().StringP("scope", "s", "", "Scope to clear (required)")
	cmd.MarkFlagRequired("scope")

	RootCmd.AddCommand(cmd)
}

func runClear(cmd *cobra.Command, args []string) {
	scopeStr, _ := cmd.Flags().GetString("scope")
	scope, err := model.ParseScope(scopeStr)
	if err != nil {
		exitErr("scope", err)
	}

	owner, tier := caller()
	a := openApp()
	defer a.Close()

	n, err := a.Client.ClearMemories(cmd.Context(), owner, tier, scope)
	if err != nil {
		exitErr("clear", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"scope":%q,"removed":%d}`+"\n", scope, n)
}
