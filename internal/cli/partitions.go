package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/permission"
)

func init() {
	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "List local store partitions",
		Long:  "List every partition of the local store with its memory count. Requires a tier with global analytics reach.",
		Run:   runPartitions,
	}

	cmd.Flags().Bool("verify", false, "Check that every row lives in the partition derived from its owner and scope")

	RootCmd.AddCommand(cmd)
}

func runPartitions(cmd *cobra.Command, args []string) {
	verify, _ := cmd.Flags().GetBool("verify")

	_, tier := caller()
	a := openApp()
	defer a.Close()

	if err := a.Matrix.Check(tier, permission.OpAnalytics, nil, nil); err != nil {
		exitErr("partitions", err)
	}
	if a.Matrix.Permission(tier).AnalyticsReach != permission.ReachGlobal {
		exitErr("partitions", fmt.Errorf("%w: tier %s may not inspect partitions", permission.ErrDenied, tier))
	}
	if a.Store == nil {
		exitErr("partitions", fmt.Errorf("local store disabled"))
	}

	if verify {
		bad, err := a.Store.Verify(cmd.Context())
		if err != nil {
			exitErr("verify", err)
		}
		if len(bad) > 0 {
			printJSON(bad)
			exitErr("verify", fmt.Errorf("%d rows outside their derived partition", len(bad)))
		}
		fmt.Fprintln(cmd.OutOrStdout(), `{"ok":true}`)
		return
	}

	rows, err := a.Store.Partitions(cmd.Context())
	if err != nil {
		exitErr("partitions", err)
	}
	if len(rows) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(rows)
}
