package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/captioncast/captioncast/internal/config"
	"github.com/spf13/cobra"
)

// Build metadata, set with -ldflags at release time.
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config  string
	Verbose bool
	JSON    bool
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "captioncast",
	Short: "CaptionCast - captioned short videos and TikTok token broker",
	Long: `CaptionCast renders short vertical videos with a caption at the top and
bottom of a looping background clip, serves them for a limited time, and
brokers TikTok OAuth tokens for the automation that publishes them.

Usage:
  captioncast [command] [flags]

Available Commands:
  serve      Start the HTTP service (main mode)
  render     Render a single video locally
  token      Exchange the configured refresh token for an access token
  doctor     Diagnose encoder, assets and configuration
  version    Print version information

Flags:
  --config string   Path to configuration file (default "config.yaml")
  --verbose         Enable verbose output
  --json            Output in JSON format

Use "captioncast [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// InitRoot initializes the root command with global flags
func InitRoot() {
	configPath := os.Getenv(config.EnvConfigPath)
	if configPath == "" {
		configPath = "config.yaml"
	}

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")

	RootCmd.AddCommand(versionCmd)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of CaptionCast",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printVersion(cmd.OutOrStdout())
	},
}

var globalFlags GlobalFlags

// GetGlobalFlags returns the global flags
func GetGlobalFlags() GlobalFlags {
	return globalFlags
}

func printVersion(w io.Writer) error {
	info := GetVersionInfo()
	if globalFlags.JSON {
		return writeJSON(w, info)
	}
	fmt.Fprintln(w, "CaptionCast Version:", info.Version)
	fmt.Fprintln(w, "Go Version:", info.GoVersion)
	fmt.Fprintln(w, "OS/Arch:", info.OS+"/"+info.Arch)
	fmt.Fprintln(w, "Build Date:", info.BuildDate)
	return nil
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	BuildDate string `json:"build_date"`
}

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		BuildDate: BuildDate,
	}
}
