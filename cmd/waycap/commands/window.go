package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/waycap/internal/backend"
	"github.com/bryanchriswhite/waycap/internal/window"
)

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Show the focused window",
	Long: `Show the focused window as reported by the window backend, including the
region that "waycap -w" would capture.`,
	Example: `  # Show the focused window
  waycap window

  # Feed the window region to another tool
  waycap window --format region`,
	Args: cobra.NoArgs,
	RunE: runWindow,
}

var windowFormat string

func init() {
	rootCmd.AddCommand(windowCmd)

	windowCmd.Flags().StringVarP(&windowFormat, "format", "f", "text", "output format (text, json or region)")
}

func runWindow(cmd *cobra.Command, args []string) error {
	wb, err := window.New(settings.WindowBackend)
	if err != nil {
		return err
	}
	defer wb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), backend.DefaultWindowTimeout)
	defer cancel()

	win, err := wb.FocusedWindow(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", wb.Name(), err)
	}
	return printWindow(os.Stdout, win, windowFormat)
}

func printWindow(out io.Writer, win *window.Window, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(win)
	case "region":
		_, err := fmt.Fprintln(out, win.Region)
		return err
	case "text":
		fmt.Fprintf(out, "Title:  %s\n", win.Title)
		fmt.Fprintf(out, "Class:  %s\n", win.Class)
		if win.Output != "" {
			fmt.Fprintf(out, "Output: %s\n", win.Output)
		}
		_, err := fmt.Fprintf(out, "Region: %s\n", win.Region)
		return err
	default:
		return fmt.Errorf("unsupported format: %s (use 'text', 'json' or 'region')", format)
	}
}

