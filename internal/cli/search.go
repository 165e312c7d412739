package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by keyword",
		Long:  "Search the owner's memories for matching text. Without a query, returns the newest memories.",
		Run:   runSearch,
	}

	cmd.Flags().StringP("scope", "s", "", "Restrict to one scope (default: every scope the tier may use)")
	cmd.Flags().String("kind", "", "Filter by kind")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	scopeStr, _ := cmd.Flags().GetString("scope")
	kindStr, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	owner, tier := caller()
	a := openApp()
	defer a.Close()

	results, err := a.Client.SearchMemories(cmd.Context(), memory.SearchRequest{
		OwnerID: owner,
		Tier:    tier,
		Query:   query,
		Scope:   optionalScope(scopeStr),
		Kind:    optionalKind(kindStr),
		Limit:   limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	if len(results) == 0 {
		fmt.Println("[]")
		return
	}

	printJSON(results)
}
