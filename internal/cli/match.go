package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/internal/scoring"
	"github.com/spf13/cobra"
)

type matchOutput struct {
	models.MatchResult
	Publishable bool `json:"publishable"`
	Exceptional bool `json:"exceptional"`
}

func newMatchCmd(opts *options) *cobra.Command {
	var dealFile, criteriaFile, historyFile string
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Score a deal snapshot against buyer criteria",
		Long: `Score a deal snapshot (JSON) against buyer criteria (JSON), optionally
with the buyer's bid history. Nothing is stored or sent.`,
		Example: `  dealctl match --deal deal.json --criteria buyer.json --history bids.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				deal     models.DealSnapshot
				criteria models.BuyerCriteria
				history  models.BuyerHistory
			)
			if err := readJSON(dealFile, &deal); err != nil {
				return err
			}
			if err := readJSON(criteriaFile, &criteria); err != nil {
				return err
			}
			if historyFile != "" {
				if err := readJSON(historyFile, &history); err != nil {
					return err
				}
			}

			p, err := opts.provider()
			if err != nil {
				return err
			}
			rules := p.Current().Match
			scorer := scoring.NewMatchScorer(rules)
			result := scorer.Score(criteria, history, deal)
			return writeJSON(cmd.OutOrStdout(), matchOutput{
				MatchResult: result,
				Publishable: scorer.Publishable(result),
				Exceptional: result.Score >= rules.ExceptionalThreshold,
			})
		},
	}
	cmd.Flags().StringVar(&dealFile, "deal", "", "deal snapshot JSON file")
	cmd.Flags().StringVar(&criteriaFile, "criteria", "", "buyer criteria JSON file")
	cmd.Flags().StringVar(&historyFile, "history", "", "buyer bid history JSON file")
	_ = cmd.MarkFlagRequired("deal")
	_ = cmd.MarkFlagRequired("criteria")
	return cmd
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
