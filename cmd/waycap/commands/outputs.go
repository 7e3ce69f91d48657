package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/waycap/internal/backend"
	"github.com/bryanchriswhite/waycap/internal/geometry"
)

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "List outputs",
	Long: `List the outputs advertised by the compositor with their logical
position and size in the global compositor space.`,
	Example: `  # List outputs in table format (default)
  waycap outputs

  # List outputs in JSON format
  waycap outputs --format json`,
	Args: cobra.NoArgs,
	RunE: runOutputs,
}

var outputsFormat string

func init() {
	rootCmd.AddCommand(outputsCmd)

	outputsCmd.Flags().StringVarP(&outputsFormat, "format", "f", "table", "output format (table or json)")
}

func runOutputs(cmd *cobra.Command, args []string) error {
	worker := backend.Start(backend.Auto)
	defer worker.Close()

	res, err := worker.Do(context.Background(), backend.ListOutputs{})
	if err == nil {
		err = res.Err
	}
	if err != nil {
		return err
	}
	return printOutputs(os.Stdout, res.Outputs, outputsFormat)
}

func printOutputs(out io.Writer, outputs []geometry.Output, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(outputs)
	case "table":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPOSITION\tSIZE\tSCALE\tDESCRIPTION")
		for _, o := range outputs {
			fmt.Fprintf(w, "%s\t%d,%d\t%dx%d\t%d\t%s\n",
				o.Name, o.X, o.Y, o.Width, o.Height, o.Scale, o.Description)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", format)
	}
}
