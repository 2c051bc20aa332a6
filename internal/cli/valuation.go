package cli

import (
	"fmt"
	"strings"

	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/internal/services"
	"github.com/spf13/cobra"
)

func newOfferCmd(opts *options) *cobra.Command {
	var arv, repairs, fee string
	cmd := &cobra.Command{
		Use:   "offer",
		Short: "Calculate a single-family wholesale offer",
		Example: `  dealctl offer --arv 300000 --repairs 25000
  dealctl offer --arv 300000 --repairs 25000 --fee 12500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := services.OfferRequest{}
			var err error
			if req.ARV, err = models.ParseMoney(arv); err != nil {
				return fmt.Errorf("--arv: %w", err)
			}
			if req.Repairs, err = models.ParseMoney(repairs); err != nil {
				return fmt.Errorf("--repairs: %w", err)
			}
			if cmd.Flags().Changed("fee") {
				f, err := models.ParseMoney(fee)
				if err != nil {
					return fmt.Errorf("--fee: %w", err)
				}
				req.AssignmentFee = &f
			}

			svc, err := opts.engine()
			if err != nil {
				return err
			}
			result, err := svc.Valuations.Offer(req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&arv, "arv", "", "after-repair value in dollars")
	cmd.Flags().StringVar(&repairs, "repairs", "0", "estimated repairs in dollars")
	cmd.Flags().StringVar(&fee, "fee", "", "assignment fee in dollars (default from rules)")
	_ = cmd.MarkFlagRequired("arv")
	return cmd
}

func newIncomeCmd(opts *options) *cobra.Command {
	var (
		req         services.IncomeRequest
		market      string
		rents       string
		marketRents string
	)
	cmd := &cobra.Command{
		Use:     "income",
		Short:   "Value a multi-family or apartment rent roll",
		Example: `  dealctl income --market dallas-tx --type multi-family-2-4 --units 4 --rents 1200,1250,1300,1200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			req.Market = models.MarketKey(market)
			if req.Rents, err = parseRents(rents); err != nil {
				return fmt.Errorf("--rents: %w", err)
			}
			if req.MarketRents, err = parseRents(marketRents); err != nil {
				return fmt.Errorf("--market-rents: %w", err)
			}

			svc, err := opts.engine()
			if err != nil {
				return err
			}
			result, err := svc.Valuations.Income(req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&market, "market", "", "market key, e.g. dallas-tx")
	cmd.Flags().StringVar(&req.Location.PostalCode, "zip", "", "postal code used to resolve the market")
	cmd.Flags().StringVar(&req.Location.City, "city", "", "city used to resolve the market")
	cmd.Flags().StringVar(&req.Location.State, "state", "", "state used to resolve the market")
	cmd.Flags().StringVar(&req.PropertyType, "type", "", "property type (multi-family-2-4, multi-family-5+, apartment-building)")
	cmd.Flags().IntVar(&req.Units, "units", 0, "number of units")
	cmd.Flags().IntVar(&req.SquareFeet, "sqft", 0, "total square feet")
	cmd.Flags().StringVar(&rents, "rents", "", "comma-separated monthly rent per unit")
	cmd.Flags().StringVar(&marketRents, "market-rents", "", "comma-separated market rent per unit (estimated when omitted)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("units")
	return cmd
}

func parseRents(s string) ([]models.Money, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]models.Money, 0, len(parts))
	for _, p := range parts {
		m, err := models.ParseMoney(p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
