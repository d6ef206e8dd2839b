package main

import (
	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Attribute charges to legs and print the breakdown",
		Long: `Reads {"legs": [...], "charges": [...]} from a file or stdin and prints
every charge with its assigned leg, role and mode, followed by the per-leg,
per-role and per-currency totals.

Examples:
  quotectl classify shipment.json
  cat shipment.json | quotectl classify`,
		Args: cobra.MaximumNArgs(1),
		RunE: runClassify,
	}
	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	}

	var req domain.ClassifyRequest
	if err := readInput(cmd, path, &req); err != nil {
		return err
	}

	charges := service.ClassifyCharges(service.FlattenLegCharges(req.Legs, req.Charges), req.Legs)
	for _, c := range charges {
		if c.Mismatched {
			logger.Warn("charge points at an unknown leg", zap.String("charge_id", c.ID), zap.String("leg_id", c.LegID))
		}
	}
	return printJSON(cmd, domain.ClassifyResponse{
		Charges:   charges,
		Breakdown: service.SummarizeCharges(charges),
	})
}
