package main

import (
	"fmt"

	"github.com/boddenberg/freight-quote-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func financialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "financials <price>",
		Short: "Derive buy price, margin and markup from a price",
		Long: `Without --buy-known the price is treated as the sell price. With it, the
price is the cost and the sell price is derived from the margin.

Examples:
  quotectl financials 1000 --margin 15
  quotectl financials 850 --margin 15 --buy-known`,
		Args: cobra.ExactArgs(1),
		RunE: runFinancials,
	}

	cmd.Flags().String("margin", "", "margin over sell price, in percent (default from config)")
	cmd.Flags().Bool("buy-known", false, "treat the price as the buy price")
	_ = viper.BindPFlag("default_margin_percent", cmd.Flags().Lookup("margin"))

	return cmd
}

func runFinancials(cmd *cobra.Command, args []string) error {
	price, err := decimal.NewFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", args[0], err)
	}
	if price.IsNegative() {
		return fmt.Errorf("price must not be negative")
	}

	margin, err := decimal.NewFromString(viper.GetString("default_margin_percent"))
	if err != nil {
		return fmt.Errorf("invalid margin: %w", err)
	}
	if margin.IsNegative() || margin.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("margin must be between 0 and 100")
	}

	buyKnown, _ := cmd.Flags().GetBool("buy-known")
	return printJSON(cmd, service.CalculateFinancials(price, margin, buyKnown))
}
