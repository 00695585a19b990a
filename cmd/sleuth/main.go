package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/bytesleuth/sleuth/internal/log"
	"github.com/bytesleuth/sleuth/internal/model"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	userConfigPath string // /default/config/path/sleuth on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		d = "."
	}
	userConfigPath = filepath.Join(d, "sleuth")

	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load (yaml or toml) - default is sleuth.yaml or sleuth.toml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initSleuth

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("sleuth failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "sleuth",
	Short:        "Forensic triage of files for hidden data",
	SilenceUsage: true,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "config prints the effective configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		if configPath != "" {
			if _, err := fmt.Fprintf(out, "# %s\n", configPath); err != nil {
				return err
			}
		}
		enc := yaml.NewEncoder(out)
		defer func() {
			_ = enc.Close()
		}()
		return enc.Encode(config)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a sleuth",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		info, ok := debug.ReadBuildInfo()
		if !ok {
			_, _ = fmt.Fprintln(out, "sleuth: version info not available")
			return
		}

		if configPath != "" {
			_, _ = fmt.Fprintf(out, "config: %s\n", configPath)
		}
		_, _ = fmt.Fprintf(out, "sleuth: %s\n", info.Main.Version)
		_, _ = fmt.Fprintf(out, "go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				_, _ = fmt.Fprintf(out, "commit: %s\n", s.Value)
			case "vcs.time":
				_, _ = fmt.Fprintf(out, "date:   %s\n", s.Value)
			case "vcs.modified":
				_, _ = fmt.Fprintf(out, "dirty:  %s\n", s.Value)
			}
		}
	},
}

// initSleuth loads .env, finds and parses the config file, applies the
// SLEUTH_* environment and sets up logging.
func initSleuth(cmd *cobra.Command, _ []string) error {
	if exists(".env") {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("loading .env: %w", err)
		}
	}

	configPath = ""
	if envConfig := os.Getenv("SLEUTHCONFIG"); envConfig != "" {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
	lookup:
		for _, d := range []string{userConfigPath, "."} {
			for _, name := range []string{"sleuth.yaml", "sleuth.toml"} {
				path := filepath.Join(d, name)
				if exists(path) {
					configPath = path
					break lookup
				}
			}
		}
	}

	var err error
	if configPath == "" {
		config = model.DefaultConfig()
	} else {
		config, err = loadConfig(configPath)
		if err != nil {
			return err
		}
	}

	config, err = model.ApplyEnv(config, os.Getenv)
	if err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	// --verbose has a precedence over config file
	if flagVerbose {
		config.Verbose = true
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.SetDefault(log.New(cmd.ErrOrStderr(), config.Verbose))
	slog.Debug("sleuth run", "configPath", configPath)
	slog.Debug("sleuth run", "config", config)
	return nil
}

func loadConfig(path string) (model.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	load := model.LoadConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		load = model.LoadTOMLConfig
	}
	cfg, err := load(f)
	if err != nil {
		return model.Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
