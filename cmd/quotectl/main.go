// Package main contains the quotectl commands: offline access to the charge
// classifier, margin calculator and rate simulator, plus dev token minting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/observability"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	logger  = zap.NewNop()
	rootCmd = &cobra.Command{
		Use:   "quotectl",
		Short: "Freight quote tooling",
		Long: `quotectl runs the freight quote BFA's pure operations from the command line.

It classifies charges onto legs, derives margin economics, previews simulated
rate options and signs development bearer tokens.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./quotectl.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(financialsCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(tokenCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("quotectl")
		viper.SetConfigType("yaml")
	}

	// QUOTE_JWT_SECRET, QUOTE_LOCALE, ... are shared with the server.
	viper.SetEnvPrefix("QUOTE")
	viper.AutomaticEnv()

	viper.SetDefault("locale", "en")
	viper.SetDefault("default_margin_percent", "15")
	viper.SetDefault("simulated_options", 4)
	viper.SetDefault("jwt_issuer", "freight-quote-bfa")
	viper.SetDefault("jwt_access_ttl", "15m")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger = observability.NewLogger(viper.GetString("log_level"))
	return nil
}
