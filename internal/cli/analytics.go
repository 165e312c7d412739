package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show memory distribution and health",
		Long: "Report totals, distributions, recent activity, most-accessed memories and health counters.\n" +
			"Owner-reach tiers see their own memories; staff and admin see every owner in their scopes.",
		Run: runAnalytics,
	}

	cmd.Flags().String("filter-owner", "", "Restrict a global report to one owner")
	cmd.Flags().String("kind", "", "Restrict the report to one kind")

	RootCmd.AddCommand(cmd)
}

func runAnalytics(cmd *cobra.Command, args []string) {
	filterOwner, _ := cmd.Flags().GetString("filter-owner")
	kindStr, _ := cmd.Flags().GetString("kind")

	owner, tier := caller()
	a := openApp()
	defer a.Close()

	rep, err := a.Client.GetAnalytics(cmd.Context(), memory.AnalyticsRequest{
		OwnerID:     owner,
		Tier:        tier,
		FilterOwner: filterOwner,
		Kind:        optionalKind(kindStr),
	})
	if err != nil {
		exitErr("analytics", err)
	}

	printJSON(rep)
}
