package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/app"
	"github.com/rcliao/tiered-memory/internal/model"
	"github.com/rcliao/tiered-memory/internal/permission"
	"github.com/rcliao/tiered-memory/internal/remote"
	"github.com/rcliao/tiered-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSON",
		Long: "Export the owner's memories as a JSON array, limited to the scopes and kinds the tier may read.\n" +
			"Reads the remote service when configured and the local store otherwise. Tiers with global\n" +
			"analytics reach may export every owner with --all-owners.",
		Run: runExport,
	}

	cmd.Flags().StringP("scope", "s", "", "Restrict to one scope")
	cmd.Flags().Bool("all-owners", false, "Export every owner (global-reach tiers only)")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	scopeStr, _ := cmd.Flags().GetString("scope")
	allOwners, _ := cmd.Flags().GetBool("all-owners")

	owner, tier := caller()
	sc := optionalScope(scopeStr)

	a := openApp()
	defer a.Close()

	scopes, err := exportScopes(a.Matrix, tier, sc, allOwners)
	if err != nil {
		exitErr("export", err)
	}
	if allOwners {
		owner = ""
	}
	if len(scopes) == 0 {
		fmt.Println("[]")
		return
	}

	memories, err := exportMemories(cmd.Context(), a, owner, scopes)
	if err != nil {
		exitErr("export", err)
	}

	perm := a.Matrix.Permission(tier)
	out := make([]model.Memory, 0, len(memories))
	for i := range memories {
		if perm.Visible(&memories[i]) {
			out = append(out, memories[i])
		}
	}
	printJSON(out)
}

// exportScopes authorizes an export and returns the scopes it may read.
// Exporting every owner also needs analytics with global reach.
func exportScopes(m *permission.Matrix, tier model.Tier, sc *model.Scope, allOwners bool) ([]model.Scope, error) {
	if err := m.Check(tier, permission.OpRead, sc, nil); err != nil {
		return nil, err
	}
	perm := m.Permission(tier)
	if allOwners {
		if err := m.Check(tier, permission.OpAnalytics, sc, nil); err != nil {
			return nil, err
		}
		if perm.AnalyticsReach != permission.ReachGlobal {
			return nil, fmt.Errorf("%w: tier %s may not export other owners", permission.ErrDenied, tier)
		}
	}
	if sc != nil {
		return []model.Scope{*sc}, nil
	}
	return perm.Scopes(), nil
}

// exportMemories lists from the remote service, falling back to the local
// store when the remote is unconfigured or fails.
func exportMemories(ctx context.Context, a *app.App, owner string, scopes []model.Scope) ([]model.Memory, error) {
	if a.Gateway.Configured() {
		mems, err := a.Gateway.List(ctx, remote.ListRequest{OwnerID: owner, Scopes: scopes})
		if err == nil {
			return mems, nil
		}
		if a.Store == nil {
			return nil, err
		}
		a.Log.Warn().Stack().Err(err).Msg("remote export failed, reading local store")
	}
	if a.Store == nil {
		return nil, fmt.Errorf("no backend configured")
	}
	return a.Store.List(ctx, store.ListParams{OwnerID: owner, Scopes: scopes})
}
