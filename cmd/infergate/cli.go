package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/infergate/infergate/internal/cli"
	"github.com/infergate/infergate/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "infergate",
	Short: "Infergate - readiness probing and smoke testing for inference backends",
	Long: `Infergate manages a registry of OpenAI-compatible inference backends
(vLLM, llama.cpp, TGI) and answers whether each one can serve requests
right now. It probes readiness with an escalating sequence of checks and
runs one-shot functional tests, either from the command line or through a
small authenticated HTTP API.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

// Build information variables
var (
	// Set by compiler via -ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"

	// Global configuration directory flag
	configDir string
)

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default: ~/.infergate)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Infergate\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Git Commit: %s\n", gitCommit)
			fmt.Printf("Build Time: %s\n", buildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	var appConfig *config.AppConfig
	var err error
	if configDir != "" {
		appConfig, err = config.NewAppConfig(config.WithConfigDir(configDir))
	} else {
		appConfig, err = config.NewAppConfig()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
	appConfig.SetVersion(version)

	rootCmd.AddCommand(cli.ServeCommand(appConfig))
	rootCmd.AddCommand(cli.ProbeCommand(appConfig))
	rootCmd.AddCommand(cli.TestCommand(appConfig))
	rootCmd.AddCommand(cli.BackendCommand(appConfig))
	rootCmd.AddCommand(cli.TokenCommand(appConfig))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
