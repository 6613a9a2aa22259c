package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/mergertracker/internal/model"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage mergertracker configuration",
	Long: `Manage mergertracker configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (MERGERTRACKER_*, e.g. MERGERTRACKER_STORE_DSN)
3. .env in the working directory
4. Config file (~/.mergertracker/config.yaml)
5. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Display the configuration after defaults, config file and environment are merged. API keys are never printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if configFile := viper.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Print(string(yamlData))

		if cfg.LLM.APIKey != "" {
			fmt.Fprintf(os.Stderr, "\nllm.api_key: set (hidden)\n")
		}
		return nil
	},
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long:  `Create ~/.mergertracker/config.yaml (or the --config path) with every option at its default and one example source.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("error finding home directory: %w", err)
			}
			configPath = filepath.Join(home, ".mergertracker", "config.yaml")
		}

		if _, err := os.Stat(configPath); err == nil && !configInitForce {
			return fmt.Errorf("config file already exists: %s\nUse 'mergertracker config show' to view it, or --force to overwrite", configPath)
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("error creating config file: %w", err)
		}
		if err := writeDefaultConfig(f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close config file: %w", err)
		}

		fmt.Printf("✓ Created default configuration: %s\n", configPath)
		fmt.Printf("\nEdit the example source, then check it with:\n")
		fmt.Printf("  mergertracker sources --check\n\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
}

// writeDefaultConfig writes the defaults plus an example source as commented YAML
func writeDefaultConfig(w io.Writer) (err error) {
	printf := func(format string, a ...any) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, format, a...)
	}

	cfg := model.DefaultConfig()
	cfg.Sources = []model.SourceConfig{exampleSource()}

	printf("# mergertracker configuration\n")
	printf("#\n")
	printf("# Environment variables override this file: MERGERTRACKER_<SECTION>_<KEY>,\n")
	printf("# e.g. MERGERTRACKER_STORE_DSN or MERGERTRACKER_LOG_LEVEL.\n")
	printf("# The digest API key is read from OPENAI_API_KEY or MERGERTRACKER_LLM_API_KEY.\n\n")

	yamlData, marshalErr := yaml.Marshal(cfg)
	if marshalErr != nil {
		return fmt.Errorf("error marshaling config: %w", marshalErr)
	}
	printf("%s", yamlData)

	printf("\n# Optional deal digest (never affects scores):\n")
	printf("#   llm:\n")
	printf("#     provider: openai   # or ollama\n")
	printf("#     model: gpt-4o-mini\n")
	return err
}

func exampleSource() model.SourceConfig {
	off := false
	src := model.DefaultSource()
	src.ID = "example-deals"
	src.Name = "Example Deals Desk"
	src.BaseURLs = []string{"https://news.example.com/deals"}
	src.Enabled = &off
	src.RateLimit = model.RateLimit{Requests: 1, Interval: 6 * time.Second}
	src.RespectRobots = true
	return src
}
