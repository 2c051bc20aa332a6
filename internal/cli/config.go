package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ajharbinger/dealflow-engine/pkg/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create engine rules files",
		Long: `Inspect and create engine rules files.

Rules hierarchy (highest to lowest priority):
1. Environment variables (DEALFLOW_*, e.g. DEALFLOW_OFFER_ARV_MULTIPLIER)
2. Rules file (--rules or RULES_FILE)
3. Built-in defaults`,
	}
	cmd.AddCommand(newConfigShowCmd(opts), newConfigInitCmd())
	return cmd
}

func newConfigShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.provider()
			if err != nil {
				return err
			}
			if p.Path() != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Rules file: %s\n\n", p.Path())
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "No rules file (using defaults)\n\n")
			}

			data, err := p.Current().YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default rules to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "rules.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("rules file already exists: %s (use --force to overwrite)", path)
			}

			data, err := config.DefaultRules().YAML()
			if err != nil {
				return err
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("create rules directory: %w", err)
				}
			}
			header := []byte("# Dealflow engine rules. Edit values and point RULES_FILE at this file;\n# the server reloads it on change.\n\n")
			if err := os.WriteFile(path, append(header, data...), 0644); err != nil {
				return fmt.Errorf("write rules file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Wrote default rules to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
