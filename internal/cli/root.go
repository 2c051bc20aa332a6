// Package cli implements dealctl, the operator command line for the
// valuation, scoring and matching engine.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"github.com/ajharbinger/dealflow-engine/internal/services"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
	"github.com/spf13/cobra"
)

type options struct {
	rulesFile string
}

// NewRootCmd builds the dealctl command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "dealctl",
		Short: "dealctl - wholesale deal valuation and scoring from the command line",
		Long: `dealctl runs the valuation, lead scoring and buyer matching engine
without the API server.

Rules are read from the file given by --rules (or RULES_FILE); without one
the built-in defaults apply. DEALFLOW_* environment variables override
individual rule values.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.rulesFile, "rules", os.Getenv("RULES_FILE"), "rules file (YAML)")

	root.AddCommand(
		newOfferCmd(opts),
		newIncomeCmd(opts),
		newLeadCmd(opts),
		newMatchCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// Execute runs dealctl
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *options) provider() (*config.RulesProvider, error) {
	p, err := config.NewRulesProvider(o.rulesFile, logger.NopLogger{})
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return p, nil
}

// engine wires the stateless services over the in-memory store
func (o *options) engine() (*services.Services, error) {
	p, err := o.provider()
	if err != nil {
		return nil, err
	}
	return services.NewServices(services.Options{Rules: p, Logger: logger.NopLogger{}}), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
