package cli

import (
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/spf13/cobra"
)

func newLeadCmd(opts *options) *cobra.Command {
	var (
		lead         models.Lead
		propertyType string
	)
	cmd := &cobra.Command{
		Use:     "lead",
		Short:   "Score and route a seller lead",
		Example: `  dealctl lead --name "Pat Seller" --phone +12145550111 --timeline ASAP --units 12 --equity high --condition poor`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if propertyType != "" {
				t, err := models.ParsePropertyType(propertyType)
				if err != nil {
					return err
				}
				lead.Type = t
			}

			svc, err := opts.engine()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), svc.Leads.Score(lead))
		},
	}
	cmd.Flags().StringVar(&lead.Name, "name", "", "seller name")
	cmd.Flags().StringVar(&lead.Email, "email", "", "seller email")
	cmd.Flags().StringVar(&lead.Phone, "phone", "", "seller phone")
	cmd.Flags().StringVar(&lead.Address, "address", "", "property address")
	cmd.Flags().StringVar(&lead.Timeline, "timeline", "", "sale timeline (ASAP, 1-3 months, exploring, ...)")
	cmd.Flags().IntVar(&lead.Units, "units", 0, "number of units")
	cmd.Flags().StringVar(&lead.Equity, "equity", "", "equity position (high, medium, low, none)")
	cmd.Flags().StringVar(&lead.Condition, "condition", "", "property condition (poor, fair, good, excellent)")
	cmd.Flags().StringVar(&propertyType, "type", "", "property type")
	return cmd
}
