package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is overridden at build time with -ldflags "-X .../cli.Version=..."
var Version = "0.1.0"

var (
	cfgFile string
	verbose bool
)

// ErrTripped is returned by run when a source's breaker ended open, so the
// process exits nonzero
var ErrTripped = errors.New("one or more sources tripped their circuit breaker")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mergertracker",
	Short: "mergertracker - M&A deal ingestion from financial news",
	Long: `mergertracker crawls financial news sources politely, picks out
merger, acquisition, IPO and divestiture coverage, extracts structured
deal records with a confidence score and stores them deduplicated.

Deals scoring between 0.3 and 0.7 are stored for human review; nothing
below 0.3 is kept.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mergertracker v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.mergertracker/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads .env, the config file and MERGERTRACKER_* variables
func initConfig() {
	// A missing .env is normal
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".mergertracker"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("MERGERTRACKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}
	_ = viper.BindEnv("llm.api_key", "MERGERTRACKER_LLM_API_KEY", "OPENAI_API_KEY")

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// envKeys can be set from the environment without appearing in the config file
var envKeys = []string{
	"log.level",
	"log.format",
	"store.driver",
	"store.dsn",
	"store.events",
	"store.redis_addr",
	"store.redis_password",
	"metrics.addr",
	"llm.provider",
	"llm.model",
	"llm.base_url",
	"http.http_proxy",
	"http.https_proxy",
	"http.render_endpoint",
}
