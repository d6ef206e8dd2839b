package main

import (
	"fmt"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <origin> <destination>",
		Short: "Preview the simulated options the fallback would return",
		Long: `Runs the local rate simulator for one route and combination and prints the
normalized, priced options ranked by price. Output is deterministic for the
same inputs.

Examples:
  quotectl simulate CNSHA NLRTM --container 40HC
  quotectl simulate FRA JFK --mode air`,
		Args: cobra.ExactArgs(2),
		RunE: runSimulate,
	}

	cmd.Flags().String("mode", "ocean", "transport mode (ocean, air, road, rail)")
	cmd.Flags().String("container", "", "container type, e.g. 20GP or 40HC")
	cmd.Flags().String("cargo", "", "cargo type, e.g. reefer or hazardous")
	cmd.Flags().Int("quantity", 1, "number of containers")
	cmd.Flags().Int("options", 0, "options to generate (default from config)")
	_ = viper.BindPFlag("simulated_options", cmd.Flags().Lookup("options"))

	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	mode, _ := cmd.Flags().GetString("mode")
	container, _ := cmd.Flags().GetString("container")
	cargo, _ := cmd.Flags().GetString("cargo")
	quantity, _ := cmd.Flags().GetInt("quantity")

	margin, err := decimal.NewFromString(viper.GetString("default_margin_percent"))
	if err != nil {
		return fmt.Errorf("invalid margin: %w", err)
	}

	route := domain.LegacyRateRequest{
		Origin:        args[0],
		Destination:   args[1],
		Mode:          mode,
		ContainerType: container,
		CargoType:     cargo,
		Quantity:      quantity,
	}
	simulator := service.NewRateSimulator(viper.GetInt("simulated_options"))
	normalizer := service.NewNormalizer(viper.GetString("locale"))

	combination := domain.Combination{ContainerType: container, CargoType: cargo, Quantity: quantity}.Key()
	opts := make([]domain.RateOption, 0)
	for _, p := range simulator.Simulate(route) {
		opt := normalizer.Normalize(domain.RawOption{Kind: domain.SourceSimulated, Payload: p})
		if opt == nil {
			continue
		}
		opt.Combination = combination
		service.ApplyFinancials(opt, margin)
		opts = append(opts, *opt)
	}
	return printJSON(cmd, service.RankByPrice(opts))
}
