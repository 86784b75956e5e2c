package stream

import (
	"github.com/spf13/cobra"

	"github.com/firewatch-ai/firewatch/internal/analysis"
	"github.com/firewatch-ai/firewatch/internal/conf"
)

// Command creates the stream command, which runs fire/smoke detection over
// an image or video and prints one event per frame.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		format    string
		threshold float32
	)

	cmd := &cobra.Command{
		Use:   "stream [file]",
		Short: "Detect fire and smoke frame by frame",
		Long: `Run fire/smoke detection over an image or video and print one event per frame
as it is processed, followed by a done or error event.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := analysis.ParseFormat(format)
			if err != nil {
				return err
			}
			c, err := analysis.Build(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer c.Close()
			return analysis.Stream(cmd.Context(), c, args[0], threshold, f, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", analysis.FormatNDJSON, "Output format: ndjson, sse")
	cmd.Flags().Float32VarP(&threshold, "threshold", "t", 0, "Minimum detection confidence, 0 uses detector.streamthreshold")
	return cmd
}
