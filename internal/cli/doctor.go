package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/captioncast/captioncast/internal/health"
	"github.com/spf13/cobra"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose encoder, assets and configuration issues",
	Long: `Perform a diagnostic of everything a render needs.

This command checks:
- ffmpeg availability on PATH
- background video and font assets
- output directory writability
- TikTok OAuth settings

Example:
  captioncast doctor --json`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

// DoctorReport represents the complete diagnostic report
type DoctorReport struct {
	Timestamp  time.Time      `json:"timestamp"`
	System     SystemInfo     `json:"system"`
	ConfigPath string         `json:"config_path"`
	Checks     []health.Check `json:"checks"`
	Failures   int            `json:"failures"`
}

// SystemInfo contains system information
type SystemInfo struct {
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	GoVersion  string `json:"go_version"`
	WorkingDir string `json:"working_dir"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result := health.NewChecker(cfg).Run()
	report := DoctorReport{
		Timestamp:  result.GeneratedAt,
		System:     collectSystemInfo(),
		ConfigPath: globalFlags.Config,
		Checks:     result.Checks,
	}
	for _, check := range result.Checks {
		if check.Status == health.StatusFail {
			report.Failures++
		}
	}

	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		err = writeJSON(out, report)
	} else {
		err = outputDoctorReportTable(out, report)
	}
	if err != nil {
		return err
	}

	if report.Failures > 0 {
		return fmt.Errorf("%d check(s) failed", report.Failures)
	}
	return nil
}

func collectSystemInfo() SystemInfo {
	wd, _ := os.Getwd()
	return SystemInfo{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		GoVersion:  runtime.Version(),
		WorkingDir: wd,
	}
}

func statusIcon(s health.Status) string {
	switch s {
	case health.StatusFail:
		return "✗"
	case health.StatusWarn:
		return "!"
	default:
		return "✓"
	}
}

func outputDoctorReportTable(out io.Writer, report DoctorReport) error {
	fmt.Fprintln(out, "=== CaptionCast Doctor Report ===")
	fmt.Fprintf(out, "Generated: %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "Config: %s\n", report.ConfigPath)
	fmt.Fprintf(out, "System: %s/%s %s\n\n", report.System.OS, report.System.Arch, report.System.GoVersion)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, check := range report.Checks {
		fmt.Fprintf(w, "%s\t%s\t%s\n", statusIcon(check.Status), check.Name, check.Message)
		if check.Hint != "" && check.Status != health.StatusPass {
			fmt.Fprintf(w, "\t\t-> %s\n", check.Hint)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if report.Failures == 0 {
		fmt.Fprintln(out, "\nAll required checks passed.")
	}
	return nil
}
