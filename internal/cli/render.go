package cli

import (
	"context"
	"fmt"

	"github.com/captioncast/captioncast/internal/render"
	"github.com/spf13/cobra"
)

// renderCmd renders one video without starting the server
var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a single captioned video locally",
	Long: `Render one video with the configured background, font and encoder and
print the path of the generated file. Files rendered this way never expire.

Example:
  captioncast render --top "Monday again" --bottom "coffee first"`,
	Args: cobra.NoArgs,
	RunE: runRender,
}

var renderFlags struct {
	Top    string
	Bottom string
}

// renderOutput is printed with --json.
type renderOutput struct {
	File string `json:"file"`
	Path string `json:"path"`
}

func init() {
	renderCmd.Flags().StringVar(&renderFlags.Top, "top", "", "Top caption")
	renderCmd.Flags().StringVar(&renderFlags.Bottom, "bottom", "", "Bottom caption")

	RootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a := newApp(cfg, newLogger(cfg), false)
	defer a.drainNoticesFor(noticeDrainTimeout)
	if err := a.renderer.EnsureOutputDir(); err != nil {
		return err
	}

	res, err := a.renderer.Render(context.Background(), render.Request{
		TopText:    renderFlags.Top,
		BottomText: renderFlags.Bottom,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		return writeJSON(out, renderOutput{File: res.FileName, Path: res.Path})
	}
	fmt.Fprintln(out, res.Path)
	return nil
}
