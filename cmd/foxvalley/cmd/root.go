package cmd

import (
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/foxvalleyai/website/internal/config"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "foxvalley",
	Short: "Fox Valley AI website backend",
	Long: `Serves the Fox Valley AI marketing site API: accounts and sessions,
the blog, the contact form, the newsletter list and social links.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	// Wipe the enclave holding the signing secret.
	memguard.Purge()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
}

// loadConfig reads the config file and environment, then applies the flags
// the user set explicitly on cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("listen", &cfg.Listen)
	str("backend", &cfg.Storage.Backend)
	str("data-dir", &cfg.Storage.DataDir)
	str("database-url", &cfg.Storage.DatabaseURL)
	str("tls-cert", &cfg.TLS.CertFile)
	str("tls-key", &cfg.TLS.KeyFile)
	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	if flags.Changed("allow-insecure-cookies") {
		cfg.Auth.AllowInsecure, _ = flags.GetBool("allow-insecure-cookies")
	}
	return cfg, cfg.Validate()
}

// addCommonFlags registers the storage and logging flags every command
// touching the database shares.
func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("backend", "", "Storage backend: bbolt, postgres, sqlite or memory")
	cmd.Flags().String("data-dir", "", "Directory for the bbolt and sqlite database files")
	cmd.Flags().String("database-url", "", "PostgreSQL connection string")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")
	cmd.Flags().String("log-format", "", "Log format: json or console")
}
