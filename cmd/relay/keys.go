package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/keys"
)

var keysFlags struct {
	description string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Create, list and toggle the API keys stored in the configured key store.

The commands operate on the store directly. A running server picks up the
change on its next refresh.

Subcommands:
  list       - List keys without their secrets
  create     - Issue a new key and print its secret once
  activate   - Re-enable a key by name
  deactivate - Disable a key by name
  stats      - Print aggregate counters

Examples:
  # List keys as a table
  relay keys list

  # Issue a key for a CI runner
  relay keys create ci --description "CI runner"

  # Disable it again
  relay keys deactivate ci

  # Machine-readable counters
  relay keys stats -o json`,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE:  listKeys,
}

var keysCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new API key",
	Long: `Create a new active API key and save it to the store.

The secret is printed once and cannot be recovered afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: createKey,
}

var keysActivateCmd = &cobra.Command{
	Use:   "activate <name>",
	Short: "Activate an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setKeyStatus(cmd, args[0], true)
	},
}

var keysDeactivateCmd = &cobra.Command{
	Use:   "deactivate <name>",
	Short: "Deactivate an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setKeyStatus(cmd, args[0], false)
	},
}

var keysStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show API key statistics",
	Args:  cobra.NoArgs,
	RunE:  keyStats,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysListCmd, keysCreateCmd, keysActivateCmd, keysDeactivateCmd, keysStatsCmd)

	keysCreateCmd.Flags().StringVarP(&keysFlags.description, "description", "d", "", "free-form description")
}

// withRegistry loads the configured store into a registry, runs fn and
// closes the store. Log output goes to stderr so stdout stays parseable.
func withRegistry(cmd *cobra.Command, fn func(ctx context.Context, reg *keys.Registry) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := setupLogging(cfg, cmd.ErrOrStderr()); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reg, closeStore, err := openRegistry(ctx, cfg)
	if err != nil {
		return cli.NewCommandError(cmd.CommandPath(), err)
	}
	defer closeStore()

	return fn(ctx, reg)
}

func listKeys(cmd *cobra.Command, args []string) error {
	f, _, err := formatter()
	if err != nil {
		return err
	}

	return withRegistry(cmd, func(ctx context.Context, reg *keys.Registry) error {
		table := &cli.Table{Headers: []string{"name", "description", "active", "created_at", "usage_count", "last_used"}}
		for _, rec := range reg.List() {
			lastUsed := ""
			if !rec.LastUsed.IsZero() {
				lastUsed = rec.LastUsed.UTC().Format(time.RFC3339)
			}
			table.AddRow(
				rec.Name,
				rec.Description,
				strconv.FormatBool(rec.Active),
				rec.CreatedAt.UTC().Format(time.RFC3339),
				strconv.FormatInt(rec.UsageCount, 10),
				lastUsed,
			)
		}
		return f.FormatTo(cmd.OutOrStdout(), table)
	})
}

// createdKey is the JSON shape printed by keys create.
type createdKey struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	APIKey      string `json:"api_key"`
}

func createKey(cmd *cobra.Command, args []string) error {
	f, format, err := formatter()
	if err != nil {
		return err
	}

	return withRegistry(cmd, func(ctx context.Context, reg *keys.Registry) error {
		secret, err := reg.Create(args[0], keysFlags.description)
		if err != nil {
			return cli.NewCommandError("keys create", err)
		}
		if err := reg.Save(ctx); err != nil {
			return cli.NewCommandError("keys create", err)
		}
		rec, _ := reg.Lookup(args[0])

		out := cmd.OutOrStdout()
		switch format {
		case cli.FormatJSON:
			return f.FormatTo(out, createdKey{Name: rec.Name, Description: rec.Description, APIKey: secret})
		case cli.FormatCSV:
			table := &cli.Table{Headers: []string{"name", "description", "api_key"}}
			table.AddRow(rec.Name, rec.Description, secret)
			return f.FormatTo(out, table)
		default:
			fmt.Fprintf(out, "✓ API key %q created\n", rec.Name)
			fmt.Fprintf(out, "API key: %s\n", secret)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "⚠️  Store this key now. It will not be shown again.")
			return nil
		}
	})
}

func setKeyStatus(cmd *cobra.Command, name string, active bool) error {
	return withRegistry(cmd, func(ctx context.Context, reg *keys.Registry) error {
		rec, ok := reg.Lookup(name)
		if !ok {
			return cli.NewCommandError(cmd.CommandPath(), fmt.Errorf("%w: %q", keys.ErrNotFound, name))
		}

		if active {
			reg.Activate(rec.Secret)
		} else {
			reg.Deactivate(rec.Secret)
		}
		if err := reg.Save(ctx); err != nil {
			return cli.NewCommandError(cmd.CommandPath(), err)
		}

		state := "deactivated"
		if active {
			state = "activated"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ API key %q %s\n", name, state)
		return nil
	})
}

func keyStats(cmd *cobra.Command, args []string) error {
	f, format, err := formatter()
	if err != nil {
		return err
	}

	return withRegistry(cmd, func(ctx context.Context, reg *keys.Registry) error {
		stats := reg.Stats()
		if format == cli.FormatJSON {
			return f.FormatTo(cmd.OutOrStdout(), stats)
		}

		table := &cli.Table{Headers: []string{"metric", "value"}}
		table.AddRow("total_keys", strconv.Itoa(stats.Total))
		table.AddRow("active_keys", strconv.Itoa(stats.Active))
		table.AddRow("inactive_keys", strconv.Itoa(stats.Inactive))
		table.AddRow("total_usage", strconv.FormatInt(stats.TotalUsage, 10))
		table.AddRow("recent_usage", strconv.Itoa(stats.RecentUsage))
		return f.FormatTo(cmd.OutOrStdout(), table)
	})
}
