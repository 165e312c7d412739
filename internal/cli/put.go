package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/memory"
	"github.com/rcliao/tiered-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runPut,
	}

	cmd.Flags().String("kind", "factual", "Kind: factual, episodic, semantic, working, preference")
	cmd.Flags().StringP("scope", "s", "personal", "Scope: personal, project, team, organization, system")
	cmd.Flags().StringP("priority", "p", "medium", "Priority: critical, high, medium, low")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags (client:<id> or project:<id> associate shared memories)")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	kindStr, _ := cmd.Flags().GetString("kind")
	scopeStr, _ := cmd.Flags().GetString("scope")
	prioStr, _ := cmd.Flags().GetString("priority")
	tagsStr, _ := cmd.Flags().GetString("tags")

	content := strings.TrimSpace(readContent(args))
	if content == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	kind, err := model.ParseKind(kindStr)
	if err != nil {
		exitErr("kind", err)
	}
	scope, err := model.ParseScope(scopeStr)
	if err != nil {
		exitErr("scope", err)
	}
	prio, err := model.ParsePriority(prioStr)
	if err != nil {
		exitErr("priority", err)
	}

	owner, tier := caller()
	a := openApp()
	defer a.Close()

	m, err := a.Client.CreateMemory(cmd.Context(), memory.CreateRequest{
		OwnerID:  owner,
		Tier:     tier,
		Content:  content,
		Kind:     kind,
		Scope:    scope,
		Priority: prio,
		Tags:     splitList(tagsStr),
	})
	if err != nil {
		exitErr("put", err)
	}

	printJSON(m)
}
