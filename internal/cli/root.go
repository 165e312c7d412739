// Package cli implements the tiered-memory CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiered-memory/internal/app"
	"github.com/rcliao/tiered-memory/internal/config"
	"github.com/rcliao/tiered-memory/internal/memory"
	"github.com/rcliao/tiered-memory/internal/model"
)

var (
	dbPath    string
	ownerFlag string
	tierFlag  string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "tiered-memory",
	Short: "Tier-gated memory store with remote service and local fallback",
	Long: "Store, search and analyze memories on behalf of an owner. Every call is checked against the\n" +
		"caller's tier, served by the remote memory service when configured, and falls back to a local\n" +
		"SQLite store. Configuration comes from TIERED_MEMORY_* environment variables.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Local database path (default: $TIERED_MEMORY_DB_PATH or ~/.tiered-memory/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&ownerFlag, "owner", "o", os.Getenv("USER"), "Owner id the call acts for")
	RootCmd.PersistentFlags().StringVar(&tierFlag, "tier", "tier_2", "Caller tier: tier_1, tier_2, tier_3, staff, admin")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

func openApp() *app.App {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	a, err := app.New(cfg)
	if err != nil {
		exitErr("open", err)
	}
	return a
}

// caller returns the owner and tier from the global flags.
func caller() (string, model.Tier) {
	tier, err := model.ParseTier(tierFlag)
	if err != nil {
		exitErr("tier", err)
	}
	return strings.TrimSpace(ownerFlag), tier
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	if code := memory.StatusCode(err); code != http.StatusInternalServerError {
		fmt.Fprintf(os.Stderr, "status: %d\n", code)
	}
	os.Exit(1)
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func splitList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// readContent takes content from positional args, then from piped stdin.
func readContent(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}

func optionalScope(s string) *model.Scope {
	if s == "" {
		return nil
	}
	sc, err := model.ParseScope(s)
	if err != nil {
		exitErr("scope", err)
	}
	return &sc
}

func optionalKind(s string) *model.Kind {
	if s == "" {
		return nil
	}
	k, err := model.ParseKind(s)
	if err != nil {
		exitErr("kind", err)
	}
	return &k
}
