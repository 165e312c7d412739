package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/permission"
)

func init() {
	cmd := &cobra.Command{
		Use:   "tiers",
		Short: "Print the effective permission table",
		Long:  "Print the permission table in the YAML shape TIERED_MEMORY_PERMISSIONS_FILE accepts.",
		Run:   runTiers,
	}

	RootCmd.AddCommand(cmd)
}

func runTiers(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	m, err := permission.Load(cfg.PermissionsFile)
	if err != nil {
		exitErr("load permissions", err)
	}

	b, err := m.Marshal()
	if err != nil {
		exitErr("tiers", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(b))
}
