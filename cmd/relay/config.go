package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file with .env and environment overrides applied
and report every invalid field.

Examples:
  # Validate the default config.yaml
  relay config validate

  # Validate another file and print the result as JSON for CI
  relay config validate -c deploy/config.yaml -o json`,
	Args: cobra.NoArgs,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
}

// validationResult is the JSON shape printed by config validate.
type validationResult struct {
	File   string        `json:"file"`
	Valid  bool          `json:"valid"`
	Errors []fieldResult `json:"errors,omitempty"`
}

type fieldResult struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func validateConfig(cmd *cobra.Command, args []string) error {
	_, format, err := formatter()
	if err != nil {
		return err
	}

	result := validationResult{File: cfgFile, Valid: true}
	if _, err := config.LoadConfigWithEnvOverrides(cfgFile); err != nil {
		var verr config.ValidationError
		if !errors.As(err, &verr) {
			return cli.NewConfigError(cfgFile, err.Error())
		}
		result.Valid = false
		for _, fe := range verr.Errors {
			result.Errors = append(result.Errors, fieldResult{Field: fe.Field, Message: fe.Message})
		}
	}

	out := cmd.OutOrStdout()
	switch format {
	case cli.FormatJSON:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			return err
		}
	case cli.FormatCSV:
		table := &cli.Table{Headers: []string{"field", "message"}}
		for _, fe := range result.Errors {
			table.AddRow(fe.Field, fe.Message)
		}
		if err := cli.NewFormatter(format).FormatTo(out, table); err != nil {
			return err
		}
	default:
		if result.Valid {
			fmt.Fprintf(out, "✓ %s is valid\n", cfgFile)
		} else {
			fmt.Fprintf(out, "✗ %s has %d error(s):\n", cfgFile, len(result.Errors))
			for _, fe := range result.Errors {
				fmt.Fprintf(out, "  - %s: %s\n", fe.Field, fe.Message)
			}
		}
	}

	if !result.Valid {
		return cli.NewConfigError(cfgFile, fmt.Sprintf("%d invalid field(s)", len(result.Errors)))
	}
	return nil
}
