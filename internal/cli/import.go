package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/memory"
	"github.com/rcliao/tiered-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import memories from JSON",
		Long: "Import memories from a JSON array on stdin (the format produced by export). Each record is\n" +
			"created through the normal write path; records without an owner_id use --owner.",
		Run: runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var memories []model.Memory
	if err := json.Unmarshal(data, &memories); err != nil {
		exitErr("parse json", err)
	}

	owner, tier := caller()
	reqs := make([]memory.CreateRequest, len(memories))
	for i, m := range memories {
		reqs[i] = memory.CreateRequest{
			OwnerID:  m.OwnerID,
			Tier:     tier,
			Content:  m.Content,
			Kind:     m.Kind,
			Scope:    m.Scope,
			Priority: m.Priority,
			Tags:     m.Tags,
		}
		if reqs[i].OwnerID == "" {
			reqs[i].OwnerID = owner
		}
	}

	a := openApp()
	defer a.Close()

	results := a.Client.BulkCreate(cmd.Context(), reqs)
	imported := 0
	for _, r := range results {
		if r.OK() {
			imported++
		}
	}

	b, _ := json.Marshal(results)
	fmt.Printf(`{"ok":%t,"imported":%d,"results":%s}`+"\n", imported == len(results), imported, b)
	if imported != len(results) {
		a.Close()
		os.Exit(1)
	}
}
