package cmd

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logLevel  string
	logFormat string
)

// rootCmd is the base command; it carries only the logging flags, and all
// feature flags live on push, the only subcommand this CLI carries.
var rootCmd = &cobra.Command{
	Use:   "secrets-sync",
	Short: "Push secrets from env/YAML/1Password/Keeper sources to AWS sinks",
	Long: `secrets-sync collects name/value secret items from heterogeneous
sources (process environment, layered YAML, 1Password, Keeper Enterprise)
and writes them to AWS SSM Parameter Store and Secrets Manager.

Examples:
  # Preview what would be pushed, without touching AWS
  secrets-sync push -f config.yaml --dry-run --print-format table

  # Push for real, printing a line per item once dispatch has finished
  secrets-sync push -f base.yaml -f dev.yaml --print-sync-details`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := log.ParseLevel(viper.GetString("log.level"))
		if err != nil {
			level = log.InfoLevel
		}
		log.SetLevel(level)

		if viper.GetString("log.format") == "json" {
			log.SetFormatter(&log.JSONFormatter{})
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	viper.SetEnvPrefix("SSX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}
