package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/memory"
	"github.com/rcliao/tiered-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a memory's content or metadata",
		Long:  "Change content, kind, priority or tags. Only flags that are set are applied; scope never changes.",
		Args:  cobra.ExactArgs(1),
		Run:   runUpdate,
	}

	cmd.Flags().String("content", "", "New content")
	cmd.Flags().String("kind", "", "New kind")
	cmd.Flags().StringP("priority", "p", "", "New priority")
	cmd.Flags().StringP("tags", "t", "", "Replace tags (comma-separated, empty clears)")

	RootCmd.AddCommand(cmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	owner, tier := caller()
	req := memory.UpdateRequest{OwnerID: owner, Tier: tier, ID: args[0]}

	if cmd.Flags().Changed("content") {
		content, _ := cmd.Flags().GetString("content")
		req.Content = &content
	}
	if cmd.Flags().Changed("kind") {
		s, _ := cmd.Flags().GetString("kind")
		req.Kind = optionalKind(s)
	}
	if cmd.Flags().Changed("priority") {
		s, _ := cmd.Flags().GetString("priority")
		p, err := model.ParsePriority(s)
		if err != nil {
			exitErr("priority", err)
		}
		req.Priority = &p
	}
	if cmd.Flags().Changed("tags") {
		s, _ := cmd.Flags().GetString("tags")
		tags := splitList(s)
		req.Tags = &tags
	}

	a := openApp()
	defer a.Close()

	m, err := a.Client.UpdateMemory(cmd.Context(), req)
	if err != nil {
		exitErr("update", err)
	}

	printJSON(m)
}
